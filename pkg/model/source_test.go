package model

import (
	"testing"
)

func TestURL(t *testing.T) {
	a := NewAddress(3, 1, 2)

	tests := []struct {
		name string
		src  Source
		want string
	}{
		{
			name: "template",
			src:  Source{Url: "https://tile.example.org/{z}/{x}/{y}.png"},
			want: "https://tile.example.org/2/3/1.png",
		},
		{
			name: "template tms",
			src:  Source{Url: "https://tile.example.org/{z}/{x}/{y}.png", Tms: true},
			want: "https://tile.example.org/2/3/2.png",
		},
		{
			name: "server parts",
			src:  Source{Url: "https://{s}.example.org/{z}/{x}/{y}", ServerParts: []string{"a"}},
			want: "https://a.example.org/2/3/1",
		},
		{
			name: "path form",
			src:  Source{Url: "http://a.tile.openstreetmap.org/"},
			want: "http://a.tile.openstreetmap.org/2/3/1.png",
		},
		{
			name: "query form",
			src:  Source{Url: "http://mt1.google.com/vt/lyrs=m@132&hl=en", Query: true},
			want: "http://mt1.google.com/vt/lyrs=m@132&hl=en&x=3&y=1&z=2",
		},
		{
			name: "jpeg ext",
			src:  Source{Url: "http://example.org", TileType: "JPEG"},
			want: "http://example.org/2/3/1.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.src.URL(a); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInZoom(t *testing.T) {
	s := Source{MinZoom: 2, MaxZoom: 5}

	if s.InZoom(1) || !s.InZoom(2) || !s.InZoom(5) || s.InZoom(6) {
		t.Error("wrong zoom range check")
	}

	if !(&Source{}).InZoom(18) {
		t.Error("unset range must accept any zoom")
	}
}
