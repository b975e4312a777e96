package ingest

import "testing"

func TestDecodeToUTF8(t *testing.T) {
	cases := []struct {
		name     string
		in       []byte
		expected string
		encoding string
	}{
		{"plain", []byte("id,name\n1,Zoë\n"), "id,name\n1,Zoë\n", "utf-8"},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("id\n")...), "id\n", "utf-8-bom"},
		{"utf16le bom", []byte{0xFF, 0xFE, 'i', 0x00, 'd', 0x00}, "id", "utf-16le"},
		{"utf16be bom", []byte{0xFE, 0xFF, 0x00, 'i', 0x00, 'd'}, "id", "utf-16be"},
		{"latin-1", []byte{'Z', 'o', 0xEB}, "Zoë", "latin-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, enc, err := DecodeToUTF8(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(out) != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, string(out))
			}
			if enc != tc.encoding {
				t.Fatalf("expected encoding %s, got %s", tc.encoding, enc)
			}
		})
	}
}
