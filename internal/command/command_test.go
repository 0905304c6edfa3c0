package command_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parlcmd/parl/internal/command"
	"github.com/parlcmd/parl/internal/model"
)

func recs(texts ...string) []model.Record {
	out := make([]model.Record, len(texts))
	for i, text := range texts {
		out[i] = model.Record{Seq: i + 7, Text: text} // seqs start at 7 on purpose
	}
	return out
}

func TestBuild(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scenario string
		argv     []string
		records  []model.Record
		want     []string
	}{
		{
			"plain placeholder",
			[]string{"echo", "{}"},
			recs("hello"),
			[]string{"echo", "hello"},
		},
		{
			"implied trailing append",
			[]string{"gzip", "-9"},
			recs("a.txt"),
			[]string{"gzip", "-9", "a.txt"},
		},
		{
			"implied append of a whole group",
			[]string{"rm"},
			recs("a", "b", "c"),
			[]string{"rm", "a", "b", "c"},
		},
		{
			"group expands bare placeholder",
			[]string{"cat", "{}"},
			recs("a", "b"),
			[]string{"cat", "a", "b"},
		},
		{
			"embedded placeholder",
			[]string{"cp", "{}", "{}.bak"},
			recs("file"),
			[]string{"cp", "file", "file.bak"},
		},
		{
			"strip extension",
			[]string{"ffmpeg", "-i", "{}", "{.}.ogg"},
			recs("song.mp3"),
			[]string{"ffmpeg", "-i", "song.mp3", "song.ogg"},
		},
		{
			"basename",
			[]string{"echo", "{/}"},
			recs("/var/log/syslog"),
			[]string{"echo", "syslog"},
		},
		{
			"dirname",
			[]string{"echo", "{//}"},
			recs("/var/log/syslog"),
			[]string{"echo", "/var/log"},
		},
		{
			"basename without extension",
			[]string{"echo", "{/.}"},
			recs("/srv/a/photo.jpg"),
			[]string{"echo", "photo"},
		},
		{
			"sequence number",
			[]string{"echo", "job-{#}", "{}"},
			recs("x"),
			[]string{"echo", "job-7", "x"},
		},
		{
			"group index",
			[]string{"mv", "{1}", "{2}"},
			recs("old", "new"),
			[]string{"mv", "old", "new"},
		},
		{
			"unknown braces stay literal",
			[]string{"awk", "{print}"},
			recs("f"),
			[]string{"awk", "{print}", "f"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			tmpl, err := command.New(tt.argv, "")
			require.NoError(t, err)
			spec, err := tmpl.Build(tt.records)
			require.NoError(t, err)
			require.Equal(t, tt.want, spec.Args)
			require.Equal(t, tt.records[0].Seq, spec.Seq)
			require.Equal(t, tt.records, spec.Records)
		})
	}
}

func TestBuildGroupIndexOutOfRange(t *testing.T) {
	t.Parallel()

	tmpl, err := command.New([]string{"mv", "{1}", "{3}"}, "")
	require.NoError(t, err)

	_, err = tmpl.Build(recs("only", "two"))
	var indexErr *command.IndexError
	require.ErrorAs(t, err, &indexErr)
	require.Equal(t, 3, indexErr.Index)
	require.Equal(t, 2, indexErr.Len)
}

func TestBuildWorkdir(t *testing.T) {
	t.Parallel()

	tmpl, err := command.New([]string{"pwd"}, "/tmp")
	require.NoError(t, err)
	spec, err := tmpl.Build(recs("x"))
	require.NoError(t, err)
	require.Equal(t, "/tmp", spec.Dir)
}

func TestNewEmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := command.New(nil, "")
	var parseErr *model.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, model.ParseNoArguments, parseErr.Kind)
}
