package detection

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"nvr-worker-go/internal/models"
)

// detectMethod takes and returns google.protobuf.Struct so no generated stubs are needed
const detectMethod = "/nvr.inference.v1.Detector/Detect"

// GRPCBackend forwards frames to a remote inference service
type GRPCBackend struct {
	conn     *grpc.ClientConn
	endpoint string
	model    string
	timeout  time.Duration
	quality  int
}

// NewGRPCLoader connects to the endpoint of a remote model and checks its health
func NewGRPCLoader(timeout time.Duration) Loader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return LoaderFunc(func(ctx context.Context, ref models.ModelRef) (Backend, error) {
		host, creds, err := parseGRPCEndpoint(ref.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to parse AI endpoint %s: %w", ref.Endpoint, err)
		}

		conn, err := grpc.NewClient(host, grpc.WithTransportCredentials(creds))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to AI service at %s: %w", host, err)
		}

		hctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		_, err = healthpb.NewHealthClient(conn).Check(hctx, &healthpb.HealthCheckRequest{})
		if err != nil && status.Code(err) != codes.Unimplemented {
			conn.Close()
			return nil, fmt.Errorf("AI service health check failed: %w", err)
		}

		log.Info().
			Str("ai_endpoint", host).
			Str("model", ref.String()).
			Bool("use_tls", creds.Info().SecurityProtocol == "tls").
			Msg("AI gRPC connection ready")

		return &GRPCBackend{
			conn:     conn,
			endpoint: host,
			model:    ref.Name,
			timeout:  timeout,
			quality:  90,
		}, nil
	})
}

func (b *GRPCBackend) Detect(ctx context.Context, frame *models.Frame) ([]models.RawDetection, error) {
	img, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	defer img.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, b.quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	jpeg := base64.StdEncoding.EncodeToString(buf.GetBytes())
	buf.Close()

	req, err := structpb.NewStruct(map[string]interface{}{
		"camera_id": frame.CameraID,
		"frame_id":  float64(frame.FrameID),
		"model":     b.model,
		"width":     float64(frame.Width),
		"height":    float64(frame.Height),
		"image":     jpeg,
	})
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := b.conn.Invoke(cctx, detectMethod, req, resp); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return decodeDetections(resp), nil
}

// decodeDetections reads {"detections": [{"class","confidence","x","y","w","h"}]}
func decodeDetections(resp *structpb.Struct) []models.RawDetection {
	list := resp.GetFields()["detections"].GetListValue()
	if list == nil {
		return nil
	}

	out := make([]models.RawDetection, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		f := v.GetStructValue().GetFields()
		if f == nil {
			continue
		}
		out = append(out, models.RawDetection{
			Class:      f["class"].GetStringValue(),
			Confidence: f["confidence"].GetNumberValue(),
			BBox: models.BBox{
				X:      f["x"].GetNumberValue(),
				Y:      f["y"].GetNumberValue(),
				Width:  f["w"].GetNumberValue(),
				Height: f["h"].GetNumberValue(),
			},
		})
	}
	return out
}

func (b *GRPCBackend) Close() error {
	return b.conn.Close()
}

// parseGRPCEndpoint normalizes host:port and picks TLS from the scheme or well-known TLS ports
func parseGRPCEndpoint(endpoint string) (string, credentials.TransportCredentials, error) {
	if endpoint == "" {
		return "", nil, fmt.Errorf("empty endpoint")
	}

	// Add scheme if missing
	if !strings.Contains(endpoint, "://") {
		if strings.Contains(endpoint, ":") {
			parts := strings.Split(endpoint, ":")
			if port, err := strconv.Atoi(parts[len(parts)-1]); err == nil && (port == 443 || port == 8443 || port == 9443) {
				endpoint = "https://" + endpoint
			} else {
				endpoint = "http://" + endpoint
			}
		} else {
			endpoint = "https://" + endpoint + ":443"
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https", "grpcs":
			host = u.Hostname() + ":443"
		case "http", "grpc":
			host = u.Hostname() + ":80"
		default:
			return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
		}
	}

	switch u.Scheme {
	case "https", "grpcs":
		return host, credentials.NewTLS(&tls.Config{ServerName: u.Hostname()}), nil
	case "http", "grpc":
		return host, insecure.NewCredentials(), nil
	default:
		return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
}
