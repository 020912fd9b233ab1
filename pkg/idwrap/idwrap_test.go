package idwrap

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestTextRoundTrip(t *testing.T) {
	id := NewNow()

	parsed, err := NewText(id.String())
	require.NoError(t, err)
	require.Equal(t, 0, id.Compare(parsed))
}

func TestNewTextRejectsGarbage(t *testing.T) {
	_, err := NewText("not-a-ulid")
	require.Error(t, err)
}

func TestBytesRoundTrip(t *testing.T) {
	id := NewNow()

	parsed, err := NewFromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestJSONEncodesAsText(t *testing.T) {
	id := NewNow()

	data, err := json.Marshal(id)
	require.NoError(t, err)
	require.Equal(t, `"`+id.String()+`"`, string(data))

	var decoded IDWrap
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, id, decoded)
}

func TestTimeIsCreationTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := NewNow()
	after := time.Now().Add(time.Second)

	created := id.Time()
	require.True(t, created.After(before), "created %v, want after %v", created, before)
	require.True(t, created.Before(after), "created %v, want before %v", created, after)
}

func TestIsZero(t *testing.T) {
	require.True(t, IDWrap{}.IsZero())
	require.False(t, NewNow().IsZero())
}

func TestScanRejectsNonBytes(t *testing.T) {
	var id IDWrap
	require.Error(t, id.Scan("string value"))
}
