package oracle

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// #region mock
type fakeConn struct {
	device string
	method string
	req    *structpb.Struct
	resp   *structpb.Struct
	err    error
}

func (f *fakeConn) Invoke(ctx context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	if md, ok := metadata.FromOutgoingContext(ctx); ok && len(md.Get(DeviceHeader)) > 0 {
		f.device = md.Get(DeviceHeader)[0]
	}
	f.method = method
	f.req = args.(*structpb.Struct)
	if f.err != nil {
		return f.err
	}
	proto.Merge(reply.(*structpb.Struct), f.resp)
	return nil
}

func (f *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("streams not supported")
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

// #endregion mock

func TestGRPCPredict(t *testing.T) {
	conn := &fakeConn{resp: mustStruct(t, map[string]any{
		"pdb":     "ATOM ...",
		"metrics": map[string]any{"plddt": 0.91, "iptm": 0.7},
	})}
	client := NewGRPCClientWithConn(conn)
	client.SetDevice("1")

	pred, err := client.Predict(context.Background(), PredictRequest{
		CandidateID: "c1",
		Sequence:    "QVQLV",
		Modality:    binder.ModalityVHH,
		Models:      []int{0, 1},
		Target:      &binder.Target{Name: "antigenX", Chain: "A"},
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if conn.method != PredictMethod {
		t.Errorf("method = %s", conn.method)
	}
	if conn.device != "1" {
		t.Errorf("device header = %q", conn.device)
	}
	if got := conn.req.GetFields()["sequence"].GetStringValue(); got != "QVQLV" {
		t.Errorf("request sequence = %q", got)
	}
	if n := len(conn.req.GetFields()["models"].GetListValue().GetValues()); n != 2 {
		t.Errorf("request models = %d", n)
	}
	if pred.Metrics["plddt"] != 0.91 || pred.Pose == nil || pred.Pose.PDB != "ATOM ..." {
		t.Errorf("unexpected prediction %+v", pred)
	}
}

func TestGRPCErrorClassification(t *testing.T) {
	cases := []struct {
		code codes.Code
		want error
	}{
		{codes.DeadlineExceeded, binder.ErrOracleTimeout},
		{codes.ResourceExhausted, binder.ErrOracleResourceExhausted},
		{codes.Unavailable, binder.ErrOracleResourceExhausted},
		{codes.InvalidArgument, binder.ErrOracleInvalidInput},
	}
	for _, tc := range cases {
		client := NewGRPCClientWithConn(&fakeConn{err: status.Error(tc.code, "boom")})
		_, err := client.Predict(context.Background(), PredictRequest{Sequence: "A"})
		if !errors.Is(err, tc.want) {
			t.Errorf("code %s: got %v, want %v", tc.code, err, tc.want)
		}
	}
}

func TestGRPCMalformedMetrics(t *testing.T) {
	conn := &fakeConn{resp: mustStruct(t, map[string]any{"metrics": map[string]any{"plddt": "high"}})}
	_, err := NewGRPCClientWithConn(conn).Predict(context.Background(), PredictRequest{Sequence: "A"})
	if !errors.Is(err, binder.ErrOracleInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	conn = &fakeConn{resp: mustStruct(t, map[string]any{})}
	_, err = NewGRPCClientWithConn(conn).Predict(context.Background(), PredictRequest{Sequence: "A"})
	if !errors.Is(err, binder.ErrOracleInvalidInput) {
		t.Fatalf("expected invalid input for missing metrics, got %v", err)
	}
}

func TestGRPCScore(t *testing.T) {
	conn := &fakeConn{resp: mustStruct(t, map[string]any{"metrics": map[string]any{"binding_energy": -12.0}})}
	client := NewGRPCClientWithConn(conn)
	got, err := client.Score(context.Background(), ScoreRequest{
		CandidateID: "c1",
		Sequence:    "QVQ",
		Pose:        &binder.Pose{PDB: "ATOM"},
		Metrics:     []string{"binding_energy"},
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if conn.method != ScoreMethod {
		t.Errorf("method = %s", conn.method)
	}
	if got["binding_energy"] != -12 {
		t.Errorf("unexpected metrics %v", got)
	}
	if conn.req.GetFields()["pdb"].GetStringValue() != "ATOM" {
		t.Errorf("pose not sent")
	}
}

func TestCloseWithoutOwnedConn(t *testing.T) {
	if err := NewGRPCClientWithConn(&fakeConn{}).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
