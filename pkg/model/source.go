package model

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Source describes one remote tile server.
type Source struct {
	Name        string        `yaml:"name"`
	Key         string        `yaml:"key"`
	MinZoom     int           `yaml:"minZoom"`
	MaxZoom     int           `yaml:"maxZoom"`
	Tms         bool          `yaml:"tms"`
	Url         string        `yaml:"url"`
	TileType    string        `yaml:"tileType"`
	ServerParts []string      `yaml:"serverParts"`
	Timeout     time.Duration `yaml:"timeout"`
	Query       bool          `yaml:"query"`
	UserAgent   string        `yaml:"userAgent"`
}

const defaultUserAgent = "tileview/1.0 (+https://github.com/kdudkov/tileview)"

func (s *Source) Ext() string {
	switch strings.ToLower(s.TileType) {
	case "":
		return "png"
	case "jpeg":
		return "jpg"
	default:
		return strings.ToLower(s.TileType)
	}
}

func (s *Source) ContentType() string {
	switch s.Ext() {
	case "jpg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func (s *Source) Agent() string {
	if s.UserAgent == "" {
		return defaultUserAgent
	}

	return s.UserAgent
}

func (s *Source) InZoom(z int) bool {
	if s.MaxZoom == 0 && s.MinZoom == 0 {
		return true
	}

	return z >= s.MinZoom && z <= s.MaxZoom
}

// URL builds the request url for a. Templates use {z} {x} {y} {-y} and {s};
// a plain base url gets either /z/x/y.ext or &x=..&y=..&z=.. appended.
func (s *Source) URL(a Address) string {
	y := a.Y
	if s.Tms {
		y = a.Flip()
	}

	if !strings.Contains(s.Url, "{") {
		if s.Query {
			return s.Url + "&x=" + strconv.Itoa(a.X) + "&y=" + strconv.Itoa(y) + "&z=" + strconv.Itoa(a.Z)
		}

		return strings.TrimRight(s.Url, "/") + "/" + strconv.Itoa(a.Z) + "/" + strconv.Itoa(a.X) + "/" + strconv.Itoa(y) + "." + s.Ext()
	}

	url := strings.ReplaceAll(s.Url, "{z}", strconv.Itoa(a.Z))
	url = strings.ReplaceAll(url, "{x}", strconv.Itoa(a.X))
	url = strings.ReplaceAll(url, "{y}", strconv.Itoa(y))
	url = strings.ReplaceAll(url, "{-y}", strconv.Itoa(a.Flip()))

	if len(s.ServerParts) > 0 {
		i := rand.Intn(len(s.ServerParts))
		url = strings.ReplaceAll(url, "{s}", s.ServerParts[i])
	}

	return url
}

func OpenStreetMap() *Source {
	return &Source{
		Name:        "OpenStreetMap",
		Key:         "osm",
		MinZoom:     0,
		MaxZoom:     19,
		Url:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		TileType:    "png",
		ServerParts: []string{"a", "b", "c"},
		Timeout:     time.Second * 10,
	}
}
