package util

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "cv.png", want: "cv.png"},
		{name: "separators", in: "scans/2024\\cv.png", want: "scans_2024_cv.png"},
		{name: "traversal", in: "../etc/passwd", wantErr: true},
		{name: "windows traversal", in: "scans\\..\\cv.png", wantErr: true},
		{name: "double dot inside name", in: "cv..final.png", want: "cv..final.png"},
		{name: "trailing dots", in: "cv...", want: "cv..."},
		{name: "dot only", in: ".", wantErr: true},
		{name: "blank", in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFileName(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "1023456789", want: "1023456789"},
		{in: "CC 1.023.456", want: "CC_1.023.456"},
		{in: "../../x", want: "x"},
		{in: "", want: "document"},
		{in: "ñ/ü", want: "document"},
	}
	for _, tt := range tests {
		if got := FileLabel(tt.in); got != tt.want {
			t.Fatalf("FileLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
