package daemonproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/goccy/go-json"
)

// EnvTarget names the registered target a re-executed child should run.
const EnvTarget = "RELEASEKIT_WORKER_TARGET"

// Target is the function run inside the worker process. A returned error is
// reported to the parent as an error frame.
type Target func(ctx context.Context, in *Input, out *Output) error

var (
	registryMu sync.RWMutex
	registry   = map[string]Target{}
)

// Register makes fn available as a worker target. It panics on an empty name,
// a nil function, or a duplicate registration, and is meant for init funcs.
func Register(name string, fn Target) {
	if name == "" || fn == nil {
		panic("daemonproc: Register requires a name and a target")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("daemonproc: target %q registered twice", name))
	}
	registry[name] = fn
}

// Targets lists the registered target names.
func Targets() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Target, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// RunIfChild runs the requested target and exits when the process was
// launched as a worker. Otherwise it returns immediately.
func RunIfChild() {
	name, ok := os.LookupEnv(EnvTarget)
	if !ok {
		return
	}
	os.Exit(runChild(name, os.Stdin, os.Stdout))
}

func runChild(name string, stdin io.Reader, stdout *os.File) int {
	// Stray prints from the target must not corrupt the output queue.
	os.Stdout = os.Stderr

	out := &Output{enc: json.NewEncoder(stdout)}
	defer func() {
		_ = out.write(frame{Kind: KindTerminated})
	}()

	target, ok := lookup(name)
	if !ok {
		_ = out.write(frame{Kind: KindError, Error: &RemoteError{
			Kind:    "UnknownTarget",
			Message: fmt.Sprintf("unknown worker target %q (registered: %s)", name, strings.Join(Targets(), ", ")),
		}})
		return 2
	}

	in := &Input{dec: json.NewDecoder(stdin)}
	if err := in.readArgs(); err != nil {
		_ = out.write(frame{Kind: KindError, Error: newRemoteError(fmt.Errorf("read worker arguments: %w", err), debug.Stack())})
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if remote := invoke(ctx, target, in, out); remote != nil {
		if err := out.write(frame{Kind: KindError, Error: remote}); err != nil {
			return 1
		}
	}
	return 0
}

func invoke(ctx context.Context, target Target, in *Input, out *Output) (remote *RemoteError) {
	defer func() {
		if r := recover(); r != nil {
			remote = newRemotePanic(r, debug.Stack())
		}
	}()
	if err := target(ctx, in, out); err != nil {
		return newRemoteError(err, debug.Stack())
	}
	return nil
}

// Input is the child's end of the input queue.
type Input struct {
	dec  *json.Decoder
	args json.RawMessage
	mu   sync.Mutex
}

func (in *Input) readArgs() error {
	var f frame
	if err := in.dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if f.Kind != KindArgs {
		return fmt.Errorf("expected %s frame, got %s", KindArgs, f.Kind)
	}
	in.args = f.Payload
	return nil
}

// Args decodes the arguments the parent passed to New.
func (in *Input) Args(v any) error {
	return Decode(in.args, v)
}

// Receive blocks for the next message sent with Process.Send. It returns
// io.EOF once the parent closes the input queue.
func (in *Input) Receive(v any) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	for {
		var f frame
		if err := in.dec.Decode(&f); err != nil {
			return err
		}
		if f.Kind == KindMessage {
			return Decode(f.Payload, v)
		}
	}
}

// Output is the child's end of the output queue. It is safe for concurrent use.
type Output struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// Init sends structured setup data.
func (o *Output) Init(v any) error { return o.send(KindInit, v) }

// Info sends a progress value.
func (o *Output) Info(v any) error { return o.send(KindInfo, v) }

// Error reports a non-fatal error. The target keeps running.
func (o *Output) Error(err error) error {
	if err == nil {
		return nil
	}
	return o.write(frame{Kind: KindError, Error: newRemoteError(err, debug.Stack())})
}

// Result sends the final value. Nothing sent afterwards reaches the parent's
// callbacks.
func (o *Output) Result(v any) error {
	return o.send(KindResult, v)
}

func (o *Output) send(kind Kind, v any) error {
	payload, err := encodePayload(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return o.write(frame{Kind: kind, Payload: payload})
}

func (o *Output) write(f frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enc.Encode(f)
}
