package cli

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/strata/pkg/pipeline"
)

const testMetadata = `{
	"layout": {
		"version": 2,
		"layers": [
			{"id": "Bg", "uri": "bg.png"},
			{"id": "Dot", "states": {"token-id": 0, "lever-id": 0, "options": [
				{"uri": "red.png", "fixed-position": {"x": 4, "y": 4}},
				{"uri": "blue.png", "fixed-position": {"x": 4, "y": 4}}
			]}}
		]
	},
	"audio-layout": {
		"layers": [{"id": "beat", "states": {"token-id": 0, "lever-id": 0, "options": [{"uri": "a.wav"}, {"uri": "b.wav"}]}}],
		"mastering": {"compressionEquation": "acompressor=threshold={threshold}:makeup=(-{maxVolume}+2):ratio=4"}
	},
	"async-attributes": {"unminted-token-values": {"0": [0, 1, 0]}}
}`

const testLayoutYAML = `version: 2
layers:
  - id: Bg
    uri: bg.png
  - id: Dot
    uri: red.png
    fixed-position: {x: 4, y: 4}
`

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// testWorkspace writes a layout, its assets, a lever file and a config
// into a temp dir and returns the dir.
func testWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "bg.png"), 8, 8, color.White)
	writePNG(t, filepath.Join(dir, "red.png"), 2, 2, color.RGBA{255, 0, 0, 255})
	writePNG(t, filepath.Join(dir, "blue.png"), 2, 2, color.RGBA{0, 0, 255, 255})

	files := map[string]string{
		"genesis.json": testMetadata,
		"simple.yaml":  testLayoutYAML,
		"levers.json":  `[{"token_id": 12, "block": 0, "values": [0, 1, 1]}]`,
		"strata.toml": "[levers]\nfile = " + quote(filepath.Join(dir, "levers.json")) +
			"\n\n[cache]\ndir = " + quote(filepath.Join(dir, "cache")) + "\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `\`, `\\`) + `"`
}

// runCLI executes the root command with args.
func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	_, err := runCLIOutput(t, args...)
	return err
}

// runCLIOutput executes the root command and returns what it wrote to the
// command's output.
func runCLIOutput(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadDocument(t *testing.T) {
	dir := testWorkspace(t)
	bare := filepath.Join(dir, "bare.json")
	if err := os.WriteFile(bare, []byte(`{"layers": [{"uri": "bg.png"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		file     string
		layers   int
		audio    bool
		unminted int
	}{
		{"metadata", "genesis.json", 2, true, 1},
		{"bare json", "bare.json", 1, false, 0},
		{"yaml", "simple.yaml", 2, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := loadDocument(filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("loadDocument: %v", err)
			}
			if got := len(doc.Layout.Layers); got != tt.layers {
				t.Errorf("layers = %d, want %d", got, tt.layers)
			}
			if (doc.Audio != nil) != tt.audio {
				t.Errorf("audio = %v, want %v", doc.Audio != nil, tt.audio)
			}
			if len(doc.Unminted) != tt.unminted {
				t.Errorf("unminted = %d, want %d", len(doc.Unminted), tt.unminted)
			}
		})
	}

	if _, err := loadDocument(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestSlugFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"layouts/genesis.json", "genesis"},
		{"My Piece #3.yaml", "My-Piece-3"},
		{"/tmp/.json", "strata"},
		{"a.b.c.json", "a.b.c"},
	}
	for _, tt := range tests {
		if got := slugFromPath(tt.path); got != tt.want {
			t.Errorf("slugFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		output string
		format string
		want   string
	}{
		{"explicit", "a/genesis.json", "out.png", "png", "out.png"},
		{"png default", "a/genesis.json", "", "png", "a/genesis-12.png"},
		{"jpeg default", "a/genesis.json", "", "jpeg", "a/genesis-12.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := pipeline.Options{MasterID: 12, Format: tt.format}
			if got := outputPath(tt.input, tt.output, opts); got != tt.want {
				t.Errorf("outputPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderCommand(t *testing.T) {
	dir := testWorkspace(t)
	input := filepath.Join(dir, "genesis.json")
	out := filepath.Join(dir, "out.png")

	err := runCLI(t, "render", input, "--config", filepath.Join(dir, "strata.toml"),
		"--master", "12", "--timestamp", "1700000000", "-o", out)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	// Token 12 selects the blue dot.
	_, _, b, _ := img.At(4, 4).RGBA()
	if b>>8 != 255 {
		t.Errorf("pixel at dot is not blue")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "cache"))
	if err != nil || len(entries) == 0 {
		t.Errorf("render should populate the cache dir: %v", err)
	}
}

func TestRenderCommandErrors(t *testing.T) {
	dir := testWorkspace(t)
	cfg := filepath.Join(dir, "strata.toml")

	tests := []struct {
		name string
		args []string
	}{
		{"bad format", []string{"render", filepath.Join(dir, "genesis.json"), "--config", cfg, "-f", "gif"}},
		{"missing layout", []string{"render", filepath.Join(dir, "nope.json"), "--config", cfg}},
		{"missing config", []string{"render", filepath.Join(dir, "genesis.json"), "--config", filepath.Join(dir, "nope.toml")}},
		{"no args", []string{"render"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runCLI(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, newLogger(io.Discard, LogInfo), func() { calls <- struct{}{} })
	}()

	wait := func() {
		t.Helper()
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watch callback")
		}
	}

	wait() // initial run
	// Other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"layers": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	wait()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watchFile() = %v", err)
	}
}
