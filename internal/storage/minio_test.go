package storage

import (
	"net/url"
	"testing"
)

func TestObjectURL(t *testing.T) {
	mustParse := func(s string) *url.URL {
		u, err := url.Parse(s)
		if err != nil {
			t.Fatal(err)
		}
		return u
	}

	tests := []struct {
		name string
		base *url.URL
		want string
	}{
		{"endpoint fallback", nil, "http://minio:9000/snaps/cam1/a.jpg"},
		{"public root", mustParse("https://cdn.example.com"), "https://cdn.example.com/cam1/a.jpg"},
		{"public path", mustParse("https://cdn.example.com/media/"), "https://cdn.example.com/media/cam1/a.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObjectURL(tt.base, "http", "minio:9000", "snaps", "cam1/a.jpg"); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
