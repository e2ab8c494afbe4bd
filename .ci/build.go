package main

import (
	"fmt"

	"github.com/vladimirvivien/gexe"
)

var (
	PkgRoot   = "github.com/kaos-tools/kaos-ui"
	Version   = fmt.Sprintf("%s-unreleased", gexe.Run("git rev-parse --abbrev-ref HEAD"))
	GitCommit = gexe.Run("git rev-parse --short HEAD")
)

// main cross-compiles kaos-ui for local release testing.
// go run .ci/build.go
func main() {
	targets := map[string][]string{
		"linux":   {"amd64", "arm64"},
		"darwin":  {"amd64", "arm64"},
		"windows": {"amd64"},
	}

	ldflags := fmt.Sprintf(
		`"-s -w -X %s/cmd.Version=%s -X %s/cmd.GitCommit=%s"`,
		PkgRoot, Version, PkgRoot, GitCommit,
	)

	failed := 0
	for goos, arches := range targets {
		for _, arch := range arches {
			binary := fmt.Sprintf(".build/%s/%s/kaos-ui", goos, arch)
			if goos == "windows" {
				binary += ".exe"
			}
			if !gobuild(goos, arch, ldflags, binary) {
				failed++
			}
		}
	}
	if failed > 0 {
		fmt.Printf("%d build(s) failed\n", failed)
	}
}

func gobuild(goos, arch, ldflags, binary string) bool {
	gexe.SetVar("os", goos)
	gexe.SetVar("arch", arch)
	gexe.SetVar("ldflags", ldflags)
	gexe.SetVar("binary", binary)
	result := gexe.Envs("CGO_ENABLED=0 GOOS=$os GOARCH=$arch").Run("go build -o $binary -ldflags $ldflags .")
	if result != "" {
		fmt.Printf("Build for %s/%s failed: %s\n", goos, arch, result)
		return false
	}
	fmt.Printf("Build %s/%s OK: %s\n", goos, arch, binary)
	return true
}
