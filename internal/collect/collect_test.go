package collect_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parlcmd/parl/internal/collect"
	"github.com/parlcmd/parl/internal/model"
)

func result(index int, stdout string, ok bool) model.JobResult {
	res := model.JobResult{
		Index:  index,
		Seq:    index + 1,
		Stdout: []byte(stdout),
		Status: model.StatusSuccess,
	}
	if !ok {
		res.Status = model.StatusFailure
		res.ExitCode = 1
	}
	return res
}

func TestReportAsCompleted(t *testing.T) {
	t.Parallel()

	var out, errW bytes.Buffer
	c := collect.New(model.Config{Ordering: model.OrderingCompletion}, &out, &errW)

	// arrival order wins, claim order does not
	c.Report(result(2, "third\n", true))
	c.Report(result(0, "first\n", true))
	c.Report(result(1, "second\n", true))

	require.Equal(t, "third\nfirst\nsecond\n", out.String())
	require.Equal(t, 3, c.Reported())
	require.Equal(t, 0, c.Failed())
	require.Equal(t, 0, c.ExitCode())
}

func TestReportInputOrder(t *testing.T) {
	t.Parallel()

	var out, errW bytes.Buffer
	c := collect.New(model.Config{Ordering: model.OrderingInput}, &out, &errW)

	c.Report(result(2, "third\n", true))
	require.Empty(t, out.String()) // held back until 0 and 1 arrive

	c.Report(result(0, "first\n", true))
	require.Equal(t, "first\n", out.String())

	c.Report(result(1, "second\n", true))
	require.Equal(t, "first\nsecond\nthird\n", out.String())
}

func TestReportKeepsJobOutputContiguous(t *testing.T) {
	t.Parallel()

	var out, errW bytes.Buffer
	c := collect.New(model.Config{Ordering: model.OrderingInput}, &out, &errW)

	a := result(0, "a-out\n", true)
	a.Stderr = []byte("a-err\n")
	b := result(1, "b-out\n", true)
	b.Stderr = []byte("b-err\n")

	c.Report(b)
	c.Report(a)

	require.Equal(t, "a-out\nb-out\n", out.String())
	require.Equal(t, "a-err\nb-err\n", errW.String())
}

func TestFailedAndExitCode(t *testing.T) {
	t.Parallel()

	var out, errW bytes.Buffer
	c := collect.New(model.Config{Ordering: model.OrderingCompletion}, &out, &errW)

	c.Report(result(0, "", true))
	c.Report(result(1, "", false))
	c.Report(result(2, "", true))

	require.Equal(t, 3, c.Reported())
	require.Equal(t, 1, c.Failed())
	require.Equal(t, 1, c.ExitCode())
}
