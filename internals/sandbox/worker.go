package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const defaultWorkerDeadline = 5 * time.Second

type WorkerConfig struct {
	// Deadline interrupts a script that runs longer. Zero means 5s.
	Deadline time.Duration

	Logger *slog.Logger
}

type Worker struct {
	deadline time.Duration
	log      *slog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	d := cfg.Deadline
	if d <= 0 {
		d = defaultWorkerDeadline
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Worker{deadline: d, log: log}
}

// Serve evaluates requests concurrently, so replies can overtake each other.
func (w *Worker) Serve(ctx context.Context, b *ChannelBoundary) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-b.Requests():
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp := w.Evaluate(req)
				if err := b.Reply(ctx, resp); err != nil {
					w.log.Warn("sandbox reply dropped", "id", req.ID, "err", err)
				}
			}()
		}
	}
}

// Evaluate runs req.Code in a fresh runtime. The result is the script's
// completion value, or the console output when that value is undefined.
func (w *Worker) Evaluate(req Request) Response {
	vm := goja.New()

	var (
		mu  sync.Mutex
		out strings.Builder
	)
	write := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		mu.Lock()
		out.WriteString(strings.Join(parts, " "))
		out.WriteByte('\n')
		mu.Unlock()
		return goja.Undefined()
	}

	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(name, write)
	}
	_ = vm.Set("console", console)

	// Taken before the script runs so it cannot be replaced from inside.
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return Response{ID: req.ID, Error: "JSON.stringify unavailable"}
	}

	timer := time.AfterFunc(w.deadline, func() {
		vm.Interrupt("execution timed out after " + w.deadline.String())
	})
	defer timer.Stop()

	v, err := vm.RunString(req.Code)
	if err != nil {
		return Response{ID: req.ID, Error: scriptMessage(err)}
	}

	if v == nil || goja.IsUndefined(v) {
		mu.Lock()
		logged := strings.TrimRight(out.String(), "\n")
		mu.Unlock()
		if logged != "" {
			return Response{ID: req.ID, Result: logged}
		}
		return Response{ID: req.ID, Result: "undefined"}
	}
	text, err := render(stringify, v)
	if err != nil {
		return Response{ID: req.ID, Error: scriptMessage(err)}
	}
	return Response{ID: req.ID, Result: text}
}

// render keeps strings as they are and JSON-encodes everything else inside
// the runtime. Values JSON cannot represent, such as functions, become
// "undefined"; cyclic values fail with the engine's TypeError.
func render(stringify goja.Callable, v goja.Value) (string, error) {
	if v.ExportType() == reflect.TypeOf("") {
		return v.String(), nil
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return "", err
	}
	if out == nil || goja.IsUndefined(out) {
		return "undefined", nil
	}
	return out.String(), nil
}

func scriptMessage(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) && exc.Value() != nil {
		return exc.Value().String()
	}
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		return fmt.Sprint("InterruptedError: ", intr.Value())
	}
	return err.Error()
}
