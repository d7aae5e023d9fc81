package sany

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Analyzer runs the external front-end over one root file. A returned error
// means the analyzer itself could not run; parse and semantic problems in the
// specification are reported through Result.Errors instead.
type Analyzer interface {
	Analyze(ctx context.Context, file string) (*Result, error)
}

type AnalyzerFunc func(ctx context.Context, file string) (*Result, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, file string) (*Result, error) {
	return f(ctx, file)
}

// Command runs the analyzer as a child process. Program and Args may contain
// ${file}, ${dir}, ${classpath} and ${format} placeholders.
type Command struct {
	Program   string
	Args      []string
	Env       []string
	Classpath string
	Format    Format
}

// ErrNoClasspath is reported when the analyzer arguments refer to
// ${classpath} but no classpath is configured.
var ErrNoClasspath = errors.New("analyzer arguments use ${classpath} but no classpath is set")

// classLoadFailures are stderr messages of a JVM that cannot load the
// analyzer at all. They mean the command is misconfigured, not that the
// specification is broken.
var classLoadFailures = []string{
	"Could not find or load main class",
}

// CheckAvailable verifies that the analyzer program can be found and that
// its arguments can be filled in.
func (c *Command) CheckAvailable() error {
	if len(c.Program) == 0 {
		return &StartupError{Command: c.Program, Err: errors.New("no analyzer command configured")}
	}
	if _, err := exec.LookPath(c.Program); err != nil {
		return &StartupError{Command: c.Program, Err: err}
	}
	if _, err := ParseFormat(string(c.Format)); err != nil {
		return &StartupError{Command: c.Program, Err: err}
	}
	if len(c.Classpath) == 0 {
		for _, arg := range append([]string{c.Program}, c.Args...) {
			if strings.Contains(arg, "${classpath}") {
				return &StartupError{Command: c.Program, Err: ErrNoClasspath}
			}
		}
	}
	return nil
}

const probeModule = "SanyProbe"

// Probe runs the analyzer once on an empty module. Any failure to produce a
// result, including a non-zero exit, is reported as a StartupError.
func (c *Command) Probe(ctx context.Context) error {
	if err := c.CheckAvailable(); err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "sany-probe")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, probeModule+moduleExt)
	content := fmt.Sprintf("---- MODULE %s ----\n====\n", probeModule)
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		return err
	}

	if _, err := c.Analyze(ctx, file); err != nil {
		if IsStartupError(err) {
			return err
		}
		return &StartupError{Command: c.Program, Err: err}
	}
	return nil
}

func (c *Command) argv(file string) []string {
	format := c.Format
	if len(format) == 0 {
		format = FormatJSON
	}

	r := strings.NewReplacer(
		"${file}", file,
		"${dir}", filepath.Dir(file),
		"${classpath}", c.Classpath,
		"${format}", string(format),
	)

	argv := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		argv = append(argv, r.Replace(arg))
	}
	return argv
}

// stderrCollector keeps the analyzer's stderr so it can be attached to crash
// errors.
type stderrCollector struct {
	buf bytes.Buffer
}

func (wr *stderrCollector) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if wr.buf.Len() != 0 {
		wr.buf.WriteByte('\n')
	}
	return wr.buf.Write(p)
}

func (wr *stderrCollector) String() string {
	return strings.TrimSpace(wr.buf.String())
}

func (c *Command) Analyze(ctx context.Context, file string) (*Result, error) {
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}

	cmd := exec.CommandContext(ctx, c.Program, c.argv(file)...)
	cmd.Dir = filepath.Dir(file)
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, &StartupError{Command: c.Program, Err: err}
		}
		return nil, err
	}

	stderr := &stderrCollector{}
	sc := bufio.NewScanner(stderrPipe)
	for sc.Scan() {
		stderr.Write(sc.Bytes())
	}
	// drain whatever the scanner gave up on so Wait does not block
	_, _ = io.Copy(io.Discard, stderrPipe)

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("analyzer exited with code %d: %s", exitErr.ExitCode(), stderr.String())
			for _, msg := range classLoadFailures {
				if strings.Contains(stderr.String(), msg) {
					return nil, &StartupError{Command: c.Program, Err: err}
				}
			}
			return nil, err
		}
		return nil, err
	}

	result, err := Decode(&stdout, c.Format, file)
	if err != nil {
		if len(stderr.String()) != 0 {
			return nil, fmt.Errorf("%w (stderr: %s)", err, stderr.String())
		}
		return nil, err
	}
	return result, nil
}
