package oracle

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// #region methods
const (
	PredictMethod = "/germinal.oracle.v1.StructurePredictor/Predict"
	ScoreMethod   = "/germinal.oracle.v1.ScoringOracle/Score"
)

// #endregion methods

// #region client-struct
// GRPCClient talks to the Python model service. Messages are
// google.protobuf.Struct so the service needs no shared stubs.
type GRPCClient struct {
	conn   *grpc.ClientConn
	cc     grpc.ClientConnInterface
	device string
}

// DeviceHeader carries the GPU device a pipeline is pinned to.
const DeviceHeader = "x-germinal-device"

// Dial connects to a model service.
func Dial(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, cc: conn}, nil
}

// NewGRPCClientWithConn wraps an existing connection. Used in tests.
func NewGRPCClientWithConn(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// SetDevice tags every call with the device the owning pipeline runs on.
func (c *GRPCClient) SetDevice(device string) { c.device = device }

func (c *GRPCClient) outgoing(ctx context.Context) context.Context {
	if c.device == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, DeviceHeader, c.device)
}

// Close shuts down the owned connection, if any.
func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion client-struct

// #region predict
// Predict implements Predictor.
func (c *GRPCClient) Predict(ctx context.Context, req PredictRequest) (Prediction, error) {
	fields := map[string]any{
		"candidate_id": req.CandidateID,
		"sequence":     req.Sequence,
		"modality":     string(req.Modality),
		"models":       intsToList(req.Models),
	}
	if req.Target != nil {
		fields["target"] = targetFields(req.Target)
	}
	if req.Prior != nil {
		fields["prior_pdb"] = req.Prior.PDB
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return Prediction{}, &binder.OracleError{Op: "predict", Kind: binder.ErrOracleInvalidInput, Err: err}
	}

	out := &structpb.Struct{}
	if err := c.cc.Invoke(c.outgoing(ctx), PredictMethod, in, out); err != nil {
		return Prediction{}, classify("predict", err)
	}

	metrics, err := decodeMetrics(out)
	if err != nil {
		return Prediction{}, &binder.OracleError{Op: "predict", Kind: binder.ErrOracleInvalidInput, Err: err}
	}
	pred := Prediction{Metrics: metrics}
	if pdb := out.GetFields()["pdb"].GetStringValue(); pdb != "" {
		pred.Pose = &binder.Pose{PDB: pdb}
	}
	return pred, nil
}

// #endregion predict

// #region score
// Score implements Scorer.
func (c *GRPCClient) Score(ctx context.Context, req ScoreRequest) (map[string]float64, error) {
	names := make([]any, len(req.Metrics))
	for i, m := range req.Metrics {
		names[i] = m
	}
	fields := map[string]any{
		"candidate_id": req.CandidateID,
		"sequence":     req.Sequence,
		"metrics":      names,
	}
	if req.Pose != nil {
		fields["pdb"] = req.Pose.PDB
	}
	if req.Target != nil {
		fields["target"] = targetFields(req.Target)
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, &binder.OracleError{Op: "score", Kind: binder.ErrOracleInvalidInput, Err: err}
	}

	out := &structpb.Struct{}
	if err := c.cc.Invoke(c.outgoing(ctx), ScoreMethod, in, out); err != nil {
		return nil, classify("score", err)
	}
	metrics, err := decodeMetrics(out)
	if err != nil {
		return nil, &binder.OracleError{Op: "score", Kind: binder.ErrOracleInvalidInput, Err: err}
	}
	return metrics, nil
}

// #endregion score

// #region helpers
// classify maps transport failures onto the oracle error taxonomy.
// Unavailable and server-side crashes are treated as resource exhaustion so
// they are retried.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &binder.OracleError{Op: op, Kind: binder.ErrOracleTimeout, Err: err}
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.DeadlineExceeded:
		return &binder.OracleError{Op: op, Kind: binder.ErrOracleTimeout, Err: err}
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition, codes.Unimplemented:
		return &binder.OracleError{Op: op, Kind: binder.ErrOracleInvalidInput, Err: err}
	default:
		return &binder.OracleError{Op: op, Kind: binder.ErrOracleResourceExhausted, Err: err}
	}
}

func decodeMetrics(out *structpb.Struct) (map[string]float64, error) {
	raw := out.GetFields()["metrics"].GetStructValue()
	if raw == nil {
		return nil, fmt.Errorf("response has no metrics")
	}
	metrics := make(map[string]float64, len(raw.GetFields()))
	for k, v := range raw.GetFields() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("metric %s is not a number", k)
		}
		metrics[k] = n.NumberValue
	}
	return metrics, nil
}

func targetFields(t *binder.Target) map[string]any {
	return map[string]any{
		"name":     t.Name,
		"pdb_path": t.PDBPath,
		"chain":    t.Chain,
		"hotspots": t.Hotspots,
		"sequence": t.Sequence,
	}
}

func intsToList(vs []int) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// #endregion helpers
