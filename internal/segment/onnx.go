package segment

import (
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// ONNXConfig configures NewONNXLoader.
type ONNXConfig struct {
	// ModelDir holds the .onnx weights. It is created on first load.
	ModelDir string
	// DownloadBaseURL is prefixed to the weights file name when a model is
	// missing locally. Empty disables downloading.
	DownloadBaseURL string
	// RuntimeLibrary is the path of the onnxruntime shared library.
	RuntimeLibrary string
	// IntraOpThreads limits threads per session; 0 keeps the runtime default.
	IntraOpThreads int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// modelSpec describes the tensor layout of one model.
type modelSpec struct {
	size int
	mean [3]float32
	std  [3]float32
	// classes > 1 selects argmax decoding and keeps pixels of class keep.
	classes int
	keep    int
}

func specFor(id ModelID) modelSpec {
	switch id {
	case Clothing:
		return modelSpec{
			size:    768,
			mean:    [3]float32{0.5, 0.5, 0.5},
			std:     [3]float32{0.5, 0.5, 0.5},
			classes: 4,
			keep:    1, // upper-body clothes
		}
	default:
		return modelSpec{
			size:    320,
			mean:    [3]float32{0.485, 0.456, 0.406},
			std:     [3]float32{0.229, 0.224, 0.225},
			classes: 1,
		}
	}
}

var runtimeMu sync.Mutex

// initRuntime initialises the onnxruntime environment once per process.
// A failed attempt may be retried.
func initRuntime(library string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if library != "" {
		ort.SetSharedLibraryPath(library)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime (%s): %w", library, err)
	}
	return nil
}

// NewONNXLoader returns a Loader that opens ONNX sessions from cfg.ModelDir,
// downloading missing weights first.
func NewONNXLoader(cfg ONNXConfig) Loader {
	cfg = withDefaults(cfg)

	return func(id ModelID) (Model, error) {
		if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create model folder %s: %w", cfg.ModelDir, err)
		}

		path := filepath.Join(cfg.ModelDir, id.FileName())
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) || cfg.DownloadBaseURL == "" {
				return nil, fmt.Errorf("failed to find model file %s: %w", path, err)
			}
			if err := downloadModel(cfg, id, path); err != nil {
				return nil, err
			}
		}

		if err := initRuntime(cfg.RuntimeLibrary); err != nil {
			return nil, err
		}
		return openONNXModel(id, path, cfg.IntraOpThreads)
	}
}

func withDefaults(cfg ONNXConfig) ONNXConfig {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return cfg
}

// downloadModel fetches the weights into a temp file next to path and renames
// it into place, so a partial download never looks like a model.
func downloadModel(cfg ONNXConfig, id ModelID, path string) error {
	url := strings.TrimSuffix(cfg.DownloadBaseURL, "/") + "/" + id.FileName()
	cfg.Logger.Info("downloading model", zap.String("model", id.ModelName()), zap.String("url", url))

	resp, err := cfg.HTTPClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", id.FileName(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: %s", id.FileName(), resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), id.ModelName()+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", id.FileName(), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install %s: %w", id.FileName(), err)
	}

	cfg.Logger.Info("model downloaded", zap.String("model", id.ModelName()), zap.Int64("bytes", n))
	return nil
}

// onnxModel owns one session and its fixed tensors. Predict is serialised
// because the tensors are reused between runs.
type onnxModel struct {
	id   ModelID
	spec modelSpec

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func openONNXModel(id ModelID, path string, threads int) (*onnxModel, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s declares no inputs or outputs", path)
	}

	spec := specFor(id)
	s := int64(spec.size)

	input, err := ort.NewTensor(ort.NewShape(1, 3, s, s), make([]float32, 3*spec.size*spec.size))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(spec.classes), s, s))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create session for %s: %w", path, err)
	}

	return &onnxModel{
		id:      id,
		spec:    spec,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

func (m *onnxModel) Predict(img image.Image) (*image.Gray, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.spec.fillInput(img, m.input.GetData())
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("failed to run session: %w", err)
	}
	return m.spec.decodeOutput(m.output.GetData()), nil
}

func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, destroy := range []func() error{m.session.Destroy, m.input.Destroy, m.output.Destroy} {
		if err := destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fillInput resizes img to the model size and writes normalised NCHW planes
// into dst. Pixel values are scaled by the image maximum before mean/std.
func (s modelSpec) fillInput(img image.Image, dst []float32) {
	resized := resize.Resize(uint(s.size), uint(s.size), img, resize.Lanczos3)
	b := resized.Bounds()
	plane := s.size * s.size

	var maxV uint32
	for y := 0; y < s.size; y++ {
		for x := 0; x < s.size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*s.size + x
			dst[i] = float32(r >> 8)
			dst[plane+i] = float32(g >> 8)
			dst[2*plane+i] = float32(bl >> 8)
			maxV = max(maxV, r>>8, g>>8, bl>>8)
		}
	}

	scale := float32(1)
	if maxV > 0 {
		scale = 1 / float32(maxV)
	}
	for c := 0; c < 3; c++ {
		ch := dst[c*plane : (c+1)*plane]
		for i := range ch {
			ch[i] = (ch[i]*scale - s.mean[c]) / s.std[c]
		}
	}
}

// decodeOutput converts the raw output tensor into a size×size mask.
func (s modelSpec) decodeOutput(data []float32) *image.Gray {
	plane := s.size * s.size
	mask := image.NewGray(image.Rect(0, 0, s.size, s.size))

	if s.classes > 1 {
		for i := 0; i < plane; i++ {
			best, bestV := 0, data[i]
			for c := 1; c < s.classes; c++ {
				if v := data[c*plane+i]; v > bestV {
					best, bestV = c, v
				}
			}
			if best == s.keep {
				mask.Pix[i] = 255
			}
		}
		return mask
	}

	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v := range data[:plane] {
		lo, hi = min(lo, v), max(hi, v)
	}
	span := hi - lo
	if span <= 0 {
		return mask
	}
	for i, v := range data[:plane] {
		mask.Pix[i] = uint8((v-lo)/span*255 + 0.5)
	}
	return mask
}
