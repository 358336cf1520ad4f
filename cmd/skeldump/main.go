// skeldump is a CLI utility for inspecting skeletal model files.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/Faultbox/midgard-skel/internal/inspect"
	"github.com/Faultbox/midgard-skel/internal/logger"
	"github.com/Faultbox/midgard-skel/pkg/formats"
	"github.com/Faultbox/midgard-skel/pkg/grf"
	"github.com/Faultbox/midgard-skel/pkg/math"
	"github.com/Faultbox/midgard-skel/pkg/model"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "tree":
		cmdTree(args)
	case "clips":
		cmdClips(args)
	case "sample":
		cmdSample(args)
	case "dump":
		cmdDump(args)
	case "serve":
		cmdServe(args)
	case "models":
		cmdModels(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`skeldump - skeletal model inspector

Usage:
  skeldump <command> [options]

Commands:
  info <model>                   Show mesh, bone and clip counts
  tree <model>                   Print the bone hierarchy
  clips <model>                  List animation clips
  sample <model> <clip> <time>   Print each bone's world position
  dump [-depth n] <model>        Dump the decoded file structure
  serve [-addr a] <model>        Serve bones, clips and poses as JSON
  models [-n N] <grf> [pattern]  List model files stored in a GRF archive

Supported formats: .gltf, .glb, .rsm

Examples:
  skeldump tree astroBoy_walk.glb
  skeldump sample astroBoy_walk.glb 0 1.25
  skeldump dump -depth 3 windmill.rsm
  skeldump serve -addr :8089 astroBoy_walk.glb`)
}

// load loads a model, logging at warn level and above.
func load(path string) *model.AnimatedModel {
	return loadAt(path, "warn")
}

func loadAt(path, level string) *model.AnimatedModel {
	if err := logger.Init(level, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	m, err := model.Load(path, model.WithLogger(logger.Named("loader")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return m
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "Usage: skeldump "+usage)
		os.Exit(1)
	}
}

func cmdInfo(args []string) {
	requireArgs(args, 1, "info <model>")
	m := load(args[0])

	vertices, triangles := 0, 0
	for _, mesh := range m.Meshes {
		vertices += mesh.VertexCount()
		triangles += len(mesh.Indices) / 3
	}
	b := m.Bounds()
	size := b.Size()

	fmt.Printf("Model:     %s\n", args[0])
	fmt.Printf("Meshes:    %d\n", len(m.Meshes))
	fmt.Printf("Vertices:  %d\n", vertices)
	fmt.Printf("Triangles: %d\n", triangles)
	fmt.Printf("Materials: %d\n", len(m.Materials))
	fmt.Printf("Bones:     %d\n", m.Skeleton.Len())
	fmt.Printf("Clips:     %d\n", m.Animations.ClipCount())
	fmt.Printf("Bounds:    %.2f x %.2f x %.2f\n", size.X, size.Y, size.Z)
}

func cmdTree(args []string) {
	requireArgs(args, 1, "tree <model>")
	m := load(args[0])
	if err := m.Skeleton.WriteTree(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdClips(args []string) {
	requireArgs(args, 1, "clips <model>")
	m := load(args[0])

	if m.Animations.ClipCount() == 0 {
		fmt.Println("No animation clips")
		return
	}
	for i := 0; i < m.Animations.ClipCount(); i++ {
		c := m.Animations.Clip(i)
		channels := 0
		for _, ch := range c.Channels {
			if ch != nil {
				channels++
			}
		}
		fmt.Printf("%3d  %-24s %8.3fs  %d channels\n", i, c.Name, c.Duration, channels)
	}
}

func cmdSample(args []string) {
	requireArgs(args, 3, "sample <model> <clip> <time>")
	m := load(args[0])

	clip, err := strconv.Atoi(args[1])
	if err != nil {
		clip, err = m.Animations.ClipIndexForName(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	t, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid time %q: %v\n", args[2], err)
		os.Exit(1)
	}

	pose := m.CreateFrame(clip, t)
	for i, world := range pose {
		p := world.TransformPoint(math.Vec3{})
		fmt.Printf("%3d  %-24s %9.3f %9.3f %9.3f\n", i, m.Skeleton.Bone(i).Name, p.X, p.Y, p.Z)
	}
}

func cmdDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	depth := fs.Int("depth", 4, "Maximum nesting depth to print")
	fs.Parse(args)
	requireArgs(fs.Args(), 1, "dump [-depth n] <model>")

	asset, err := formats.ParseFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := spew.ConfigState{
		Indent:                  "  ",
		MaxDepth:                *depth,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		SortKeys:                true,
	}
	cfg.Fdump(os.Stdout, asset)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8089", "Listen address")
	fs.Parse(args)
	requireArgs(fs.Args(), 1, "serve [-addr a] <model>")

	m := loadAt(fs.Arg(0), "info")
	srv := inspect.New(fs.Arg(0), m, logger.Named("inspect"))
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdModels(args []string) {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N files (0 = all)")
	fs.Parse(args)
	requireArgs(fs.Args(), 1, "models [-n N] <grf> [pattern]")

	archive, err := grf.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	pattern := strings.ToLower(fs.Arg(1))

	count := 0
	for _, f := range archive.List() {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".rsm", ".gltf", ".glb":
		default:
			continue
		}
		if pattern != "" {
			matched, _ := filepath.Match(pattern, filepath.Base(f))
			if !matched && !strings.Contains(f, pattern) {
				continue
			}
		}
		fmt.Println(f)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	fmt.Fprintf(os.Stderr, "\n(%d models)\n", count)
}
