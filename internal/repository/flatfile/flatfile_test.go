package flatfile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mood-tracker/internal/domain"
)

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatKeyed, f)

	f, err = ParseFormat(" Positional ")
	require.NoError(t, err)
	assert.Equal(t, FormatPositional, f)

	_, err = ParseFormat("json")
	require.Error(t, err)
}

func TestEncodeKeyed(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, FormatKeyed, []domain.MoodRecord{
		{UserID: 3, Labels: []string{"tired"}},
		{UserID: 1, Labels: []string{"happy", "sad"}},
		{UserID: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "1,happy,sad\n2\n3,tired\n", buf.String())
}

func TestEncodePositionalFillsGaps(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, FormatPositional, []domain.MoodRecord{
		{UserID: 1, Labels: []string{"happy", "sad"}},
		{UserID: 4, Labels: []string{"ok"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "happy,sad\n\n\nok\n", buf.String())
}

func TestEncodePositionalRejectsNonPositiveID(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, FormatPositional, []domain.MoodRecord{{UserID: 0, Labels: []string{"x"}}})
	require.Error(t, err)
}

func TestDecodePositionalLegacyFile(t *testing.T) {
	records, err := Decode(strings.NewReader("happy,sad\n\ncalm,\n"), FormatPositional)
	require.NoError(t, err)
	assert.Equal(t, map[int64][]string{
		1: {"happy", "sad"},
		2: {},
		3: {"calm"},
	}, records)
}

func TestDecodePositionalBareQuotes(t *testing.T) {
	records, err := Decode(strings.NewReader("happy,said \"hi\"\n"), FormatPositional)
	require.NoError(t, err)
	assert.Equal(t, map[int64][]string{1: {"happy", `said "hi"`}}, records)
}

func TestPositionalQuotedLabelsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, FormatPositional, []domain.MoodRecord{
		{UserID: 1, Labels: []string{`said "hi"`, "calm, mostly", "  spaced "}},
	})
	require.NoError(t, err)
	assert.Equal(t, `"said ""hi""","calm, mostly","  spaced "`+"\n", buf.String())

	records, err := Decode(&buf, FormatPositional)
	require.NoError(t, err)
	assert.Equal(t, map[int64][]string{1: {`said "hi"`, "calm, mostly", "  spaced "}}, records)
}

func TestDecodeKeyedErrors(t *testing.T) {
	_, err := Decode(strings.NewReader("abc,happy\n"), FormatKeyed)
	require.Error(t, err)

	_, err = Decode(strings.NewReader("1,happy\n1,sad\n"), FormatKeyed)
	require.Error(t, err)
}

func TestRepositoryRoundTrip(t *testing.T) {
	records := []domain.MoodRecord{
		{UserID: 1, Labels: []string{"happy", "sad"}},
		{UserID: 2, Labels: nil},
		{UserID: 4, Labels: []string{"calm, mostly", `"quoted"`}},
	}
	want := map[int64][]string{
		1: {"happy", "sad"},
		2: {},
		4: {"calm, mostly", `"quoted"`},
	}

	for _, format := range []Format{FormatKeyed, FormatPositional} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "data", "moods.csv")
			repo := NewMoodRepository(path, format)
			require.NoError(t, repo.Init(ctx))

			got, err := repo.LoadAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, got, "missing file means no history yet")

			require.NoError(t, repo.SaveAll(ctx, records))
			got, err = repo.LoadAll(ctx)
			require.NoError(t, err)

			if format == FormatPositional {
				// the gap row for id 3 comes back as an empty log
				want := map[int64][]string{1: want[1], 2: want[2], 3: {}, 4: want[4]}
				assert.Equal(t, want, got)
			} else {
				assert.Equal(t, want, got)
			}

			// saving again without changes is idempotent
			require.NoError(t, repo.SaveAll(ctx, records))
			again, err := repo.LoadAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, got, again)

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp files must not be left behind")
		})
	}
}

func TestRepositorySaveAllCancelledKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moods.csv")
	repo := NewMoodRepository(path, FormatKeyed)
	require.NoError(t, repo.Init(context.Background()))
	require.NoError(t, repo.SaveAll(context.Background(), []domain.MoodRecord{{UserID: 1, Labels: []string{"happy"}}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := repo.SaveAll(ctx, []domain.MoodRecord{{UserID: 1, Labels: []string{"happy", "sad"}}})
	require.ErrorIs(t, err, context.Canceled)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1,happy\n", string(data))
}

func TestRepositorySaveAllFailsWhenDirectoryMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone", "moods.csv")
	repo := NewMoodRepository(path, FormatKeyed)

	err := repo.SaveAll(context.Background(), []domain.MoodRecord{{UserID: 1, Labels: []string{"happy"}}})
	require.Error(t, err)
}
