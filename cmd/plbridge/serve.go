package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caffeineduck/plbridge/bridge"
	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/value"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for function calls",
	Long: `Start an HTTP server that calls catalog functions.

Endpoints:
  POST   /call         Call a function: {"function":"double_it","args":[21]}
  GET    /functions    List catalog functions
  GET    /health       Health check

Failed calls return {"error":"...","sqlstate":"...","details":[...]}.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	rootCmd.AddCommand(serveCmd)
}

type callRequest struct {
	Function string            `json:"function"`
	Args     []json.RawMessage `json:"args"`
}

type callResponse struct {
	Function   string `json:"function"`
	Result     any    `json:"result"`
	DurationMs int64  `json:"duration_ms"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	SQLState string   `json:"sqlstate"`
	Details  []string `json:"details,omitempty"`
}

type functionInfo struct {
	OID     catalog.FuncID `json:"oid"`
	Name    string         `json:"name"`
	Args    []catalog.Arg  `json:"args"`
	Returns catalog.Type   `json:"returns"`
}

type server struct {
	handler *bridge.Handler
	logger  *zap.Logger
}

func newServer(h *bridge.Handler, logger *zap.Logger) http.Handler {
	s := &server{handler: h, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", s.call)
	mux.HandleFunc("GET /functions", s.functions)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *server) call(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Function == "" {
		http.Error(w, "function required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	cat := s.handler.Catalog()
	id, err := catalog.ResolveRef(ctx, cat, req.Function)
	if err != nil {
		s.fail(w, err)
		return
	}
	fn, err := cat.Lookup(ctx, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	vals, err := jsonArgs(fn, req.Args)
	if err != nil {
		s.fail(w, err)
		return
	}

	start := time.Now()
	v, err := s.handler.Call(ctx, bridge.Call{Func: id, Args: vals})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, callResponse{
		Function:   fn.Name,
		Result:     v.Any(),
		DurationMs: time.Since(start).Milliseconds(),
	})
}

func (s *server) functions(w http.ResponseWriter, r *http.Request) {
	l, ok := s.handler.Catalog().(catalog.Lister)
	if !ok {
		http.Error(w, "catalog cannot list functions", http.StatusNotImplemented)
		return
	}
	funcs, err := l.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]functionInfo, len(funcs))
	for i, fn := range funcs {
		args := fn.Args
		if args == nil {
			args = []catalog.Arg{}
		}
		out[i] = functionInfo{OID: fn.ID, Name: fn.Name, Args: args, Returns: fn.Returns}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Warn("call error", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{
		Error:    err.Error(),
		SQLState: string(plerr.SQLState(err)),
		Details:  plerr.Details(err),
	})
}

func statusFor(err error) int {
	switch plerr.KindOf(err) {
	case plerr.ErrNotFound:
		return http.StatusNotFound
	case plerr.ErrInvalidArgument, plerr.ErrUnsupportedArgumentType:
		return http.StatusBadRequest
	case plerr.ErrTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// jsonArgs converts JSON call arguments to values of fn's parameter types.
// Strings are parsed like command line arguments; numbers and booleans must
// match the parameter type.
func jsonArgs(fn *catalog.Function, raw []json.RawMessage) ([]value.Value, error) {
	if len(raw) != len(fn.Args) {
		return nil, plerr.Newf(plerr.ErrInvalidArgument, "%s takes %d arguments, got %d",
			fn.Name, len(fn.Args), len(raw))
	}
	vals := make([]value.Value, len(raw))
	for i, msg := range raw {
		typ := fn.Args[i].Type
		v, err := jsonArg(typ, msg)
		if err != nil {
			return nil, plerr.Wrap(err, plerr.ErrInvalidArgument, "argument "+argName(fn, i))
		}
		vals[i] = v
	}
	return vals, nil
}

func jsonArg(typ catalog.Type, msg json.RawMessage) (value.Value, error) {
	lit := strings.TrimSpace(string(msg))
	switch {
	case lit == "null":
		return value.Null(typ), nil
	case strings.HasPrefix(lit, `"`):
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return value.Value{}, errors.Wrap(err, "decode string")
		}
		return value.Parse(typ, s)
	case typ == catalog.Text:
		return value.Value{}, errors.Newf("text parameter needs a JSON string, got %s", lit)
	}
	return value.Parse(typ, lit)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withHandler(cmd.Context()); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(a.handler, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-cmd.Context().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	a.logger.Info("plbridge server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}
