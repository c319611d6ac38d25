package sniff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	textPayload = []byte("This is a test text file for upload testing.\nIt contains multiple lines.\n")
	jsonPayload = []byte(`{"test": "data", "number": 42, "array": [1, 2, 3]}`)
	pngPayload  = append([]byte("\x89PNG\r\n\x1a\n"), []byte(strings.Repeat("fake image data", 20))...)
	jpegPayload = append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)
)

func TestDetectIgnoresFilenames(t *testing.T) {
	t.Parallel()

	// Detection only sees bytes; the same payload must sniff identically no
	// matter what the caller names it.
	require.Equal(t, "text/plain", Detect(textPayload), "plain text")
	require.Equal(t, "image/png", Detect(pngPayload), "png magic bytes")
}

func TestDetectDeterministic(t *testing.T) {
	t.Parallel()

	for range 10 {
		require.Equal(t, Detect(jsonPayload), Detect(jsonPayload), "repeated sniffs must agree")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	table := DefaultTable()

	tests := []struct {
		name        string
		data        []byte
		declared    string
		wantOK      bool
		wantWarning bool
	}{
		{name: "text declared as text", data: textPayload, declared: "text/plain", wantOK: true},
		{name: "text declared as jpeg", data: textPayload, declared: "image/jpeg", wantOK: false},
		{name: "json declared as json", data: jsonPayload, declared: "application/json", wantOK: true},
		{name: "json declared as text", data: jsonPayload, declared: "text/plain", wantOK: true, wantWarning: true},
		{name: "png declared as png", data: pngPayload, declared: "image/png", wantOK: true},
		{name: "png declared as text", data: pngPayload, declared: "text/plain", wantOK: false},
		{name: "jpeg declared with jpg alias", data: jpegPayload, declared: "image/jpg", wantOK: true},
		{name: "anything declared as octet-stream", data: pngPayload, declared: "application/octet-stream", wantOK: true, wantWarning: true},
		{name: "empty declaration accepts anything", data: textPayload, declared: "", wantOK: true, wantWarning: true},
		{name: "declaration parameters are ignored", data: textPayload, declared: "text/plain; charset=utf-8", wantOK: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sniffed, warning, ok := table.Validate(tc.data, tc.declared)
			require.Equal(t, tc.wantOK, ok, "compatibility verdict")
			require.NotEmpty(t, sniffed, "sniffed type must always be reported")
			if tc.wantWarning {
				require.NotEmpty(t, warning, "expected an informational warning")
			} else {
				require.Empty(t, warning, "unexpected warning")
			}
		})
	}
}

func TestValidateReportsSniffedTypeOnMismatch(t *testing.T) {
	t.Parallel()

	sniffed, _, ok := DefaultTable().Validate(textPayload, "image/jpeg")
	require.False(t, ok, "text content must not pass as image/jpeg")
	require.Equal(t, "text/plain", sniffed, "mismatch must still report the sniffed type")
}
