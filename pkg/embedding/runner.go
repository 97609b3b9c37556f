package embedding

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MacPhobos/audio-ident-sub000/pkg/audio"
	"github.com/MacPhobos/audio-ident-sub000/pkg/buffer"
)

// Runner drives a long-lived external inference process.
//
// The process is started once with the model name and dimension as
// arguments, prints a handshake line, then answers length-prefixed frames
// on its stdin/stdout for the life of the service:
//
//	handshake  "ready <model> <dim>\n"
//	request    uint32 LE pcm byte count | pcm bytes
//	response   uint32 LE dim            | dim float32 LE values
//	error      uint32 LE 0              | uint32 LE length | message
//
// A dead or misbehaving process marks the Runner broken; subsequent calls
// return ErrUnavailable until the service is restarted.
type Runner struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	conn   *conn
	name   string
	dim    int
	broken bool
	log    *slog.Logger

	// stderrTail keeps the process's last stderr lines for diagnostics
	// when it dies or fails the handshake.
	stderrTail *buffer.Ring[string]
}

// NewRunner starts bin and performs the handshake. The reported dimension
// must equal dim; the reported model name is taken as authoritative.
func NewRunner(ctx context.Context, bin, model string, dim int, log *slog.Logger) (*Runner, error) {
	cmd := exec.Command(bin, model, strconv.Itoa(dim))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("embedding: runner stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("embedding: runner stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("embedding: runner stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("embedding: start runner %s: %w", bin, err)
	}

	r := &Runner{
		cmd:        cmd,
		stdin:      stdin,
		conn:       newConn(stdout, stdin),
		dim:        dim,
		log:        log,
		stderrTail: buffer.RingN[string](16),
	}
	go r.drainStderr(stderr)

	// Abandon the process if the handshake stalls past the caller's
	// deadline.
	stop := context.AfterFunc(ctx, func() { cmd.Process.Kill() })
	name, err := r.conn.handshake(dim)
	stop()
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		if tail := r.stderrTail.Snapshot(); len(tail) > 0 {
			return nil, fmt.Errorf("embedding: runner handshake: %w (stderr: %s)", err, strings.Join(tail, " | "))
		}
		return nil, fmt.Errorf("embedding: runner handshake: %w", err)
	}
	r.name = name
	return r, nil
}

func (r *Runner) Embed(ctx context.Context, pcm48 []byte) ([]float32, error) {
	if len(pcm48) == 0 {
		return nil, ErrEmptyInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken {
		return nil, fmt.Errorf("%w: runner process dead", ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Pipe IO does not honor ctx; kill the process to unblock on cancel.
	stop := context.AfterFunc(ctx, func() { r.cmd.Process.Kill() })
	vec, err := r.conn.roundTrip(pcm48)
	stop()
	if err != nil {
		if _, ok := err.(*inferenceError); ok {
			// The model rejected this input; the process is still good.
			return nil, err
		}
		r.broken = true
		r.cmd.Process.Kill()
		if r.log != nil {
			r.log.Warn("embedding runner died",
				"error", err,
				"stderr_tail", strings.Join(r.stderrTail.Snapshot(), " | "))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return vec, nil
}

func (r *Runner) Name() string   { return r.name }
func (r *Runner) Dimension() int { return r.dim }

// Close asks the process to exit by closing stdin, then kills it if it
// lingers.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken = true
	r.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- r.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		r.cmd.Process.Kill()
		<-done
	}
	return nil
}

func (r *Runner) drainStderr(stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		r.stderrTail.Add(sc.Text())
		if r.log != nil {
			r.log.Debug("embedding runner", "stderr", sc.Text())
		}
	}
}

// inferenceError is a model-level rejection carried by an error frame.
type inferenceError struct{ msg string }

func (e *inferenceError) Error() string {
	return fmt.Sprintf("embedding: inference failed: %s", e.msg)
}

// conn speaks the framed protocol over a byte stream. It is not safe for
// concurrent use; the Runner serializes access.
type conn struct {
	r *bufio.Reader
	w io.Writer
}

func newConn(r io.Reader, w io.Writer) *conn {
	return &conn{r: bufio.NewReader(r), w: w}
}

// handshake consumes the ready line and returns the reported model name.
func (c *conn) handshake(wantDim int) (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read ready line: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "ready" {
		return "", fmt.Errorf("unexpected ready line %q", strings.TrimSpace(line))
	}
	dim, err := strconv.Atoi(fields[2])
	if err != nil {
		return "", fmt.Errorf("bad dimension in ready line %q", strings.TrimSpace(line))
	}
	if dim != wantDim {
		return "", fmt.Errorf("model dimension %d, want %d", dim, wantDim)
	}
	return fields[1], nil
}

// roundTrip sends one PCM frame and reads the vector or error frame.
func (c *conn) roundTrip(pcm []byte) ([]float32, error) {
	var head [4]byte
	binary.LittleEndian.PutUint32(head[:], uint32(len(pcm)))
	if _, err := c.w.Write(head[:]); err != nil {
		return nil, err
	}
	if _, err := c.w.Write(pcm); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(c.r, head[:]); err != nil {
		return nil, err
	}
	dim := binary.LittleEndian.Uint32(head[:])
	if dim == 0 {
		if _, err := io.ReadFull(c.r, head[:]); err != nil {
			return nil, err
		}
		msg := make([]byte, binary.LittleEndian.Uint32(head[:]))
		if _, err := io.ReadFull(c.r, msg); err != nil {
			return nil, err
		}
		return nil, &inferenceError{msg: string(msg)}
	}

	raw := make([]byte, dim*4)
	if _, err := io.ReadFull(c.r, raw); err != nil {
		return nil, err
	}
	return audio.Samples(raw), nil
}

// Compile-time interface check.
var _ Model = (*Runner)(nil)
