// Package deploy declares the deployment image and app descriptor in code.
// The checked-in Dockerfile is the rendered output of DefaultImage.
package deploy

import (
	"fmt"
	"strings"
)

// ImageSpec describes the container image: a build stage, a runtime base and
// the OS packages the runtime needs. Rendering is deterministic so the
// output can be checked in and diffed.
type ImageSpec struct {
	BuildImage   string
	RuntimeImage string
	Packages     []string
	BinaryName   string
	Port         int
}

// Function is a named entry point exposed by the app.
type Function struct {
	Name    string
	Command []string
}

// App is the deployment descriptor: one image and its entry points.
type App struct {
	Name      string
	Image     ImageSpec
	Functions []Function
}

// DefaultImage is the image the bot ships with.
func DefaultImage() ImageSpec {
	return ImageSpec{
		BuildImage:   "golang:1.25-bookworm",
		RuntimeImage: "debian:bookworm-slim",
		Packages: []string{
			"ca-certificates",
			"libsqlite3-0",
			"tzdata",
		},
		BinaryName: "poegate",
		Port:       8080,
	}
}

// DefaultApp is the deployment descriptor for the bot.
func DefaultApp() App {
	return App{
		Name:  "poegate",
		Image: DefaultImage(),
		Functions: []Function{
			{Name: "serve", Command: []string{"/usr/local/bin/poegate"}},
		},
	}
}

// Validate checks the descriptor invariants: exactly one entry-point
// function, each with a command.
func (a App) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if len(a.Functions) != 1 {
		return fmt.Errorf("app must declare exactly one function, got %d", len(a.Functions))
	}
	fn := a.Functions[0]
	if fn.Name == "" {
		return fmt.Errorf("function name is required")
	}
	if len(fn.Command) == 0 {
		return fmt.Errorf("function %q has no command", fn.Name)
	}
	return nil
}

// Render produces the multi-stage Dockerfile for the image.
func (s ImageSpec) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "FROM %s AS build\n", s.BuildImage)
	sb.WriteString("WORKDIR /src\n")
	sb.WriteString("COPY go.* ./\n")
	sb.WriteString("RUN go mod download\n")
	sb.WriteString("COPY . .\n")
	fmt.Fprintf(&sb, "RUN CGO_ENABLED=1 go build -o /out/%s .\n", s.BinaryName)
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "FROM %s\n", s.RuntimeImage)
	if len(s.Packages) > 0 {
		sb.WriteString("RUN apt-get update && apt-get install -y --no-install-recommends \\\n")
		for _, pkg := range s.Packages {
			sb.WriteString("    " + pkg + " \\\n")
		}
		sb.WriteString("    && rm -rf /var/lib/apt/lists/*\n")
	}
	fmt.Fprintf(&sb, "COPY --from=build /out/%s /usr/local/bin/%s\n", s.BinaryName, s.BinaryName)
	fmt.Fprintf(&sb, "EXPOSE %d\n", s.Port)
	fmt.Fprintf(&sb, "ENTRYPOINT [\"/usr/local/bin/%s\"]\n", s.BinaryName)

	return sb.String()
}
