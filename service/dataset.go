package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/TIANLI0/maskpaint/utils"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("dataset entry not found")
	ErrInvalidName = errors.New("invalid dataset or file name")
)

const (
	imagesDir = "images"
	labelsDir = "labels"
)

var datasetPathRe = regexp.MustCompile(`/datasets/([^/]+)/images/`)

// DatasetService 管理 <root>/<dataset>/images 与 <root>/<dataset>/labels 下的文件
type DatasetService struct {
	root string
}

func NewDatasetService(root string) *DatasetService {
	return &DatasetService{root: root}
}

// LabelName 由图像文件名推导标签文件名：1.JPG -> 1.png
func LabelName(imageName string) string {
	base := filepath.Base(imageName)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		return ""
	}
	return base + ".png"
}

// DatasetFromPath 从 .../datasets/<name>/images/<file> 形式的路径中提取数据集名
func DatasetFromPath(p string) string {
	m := datasetPathRe.FindStringSubmatch(p)
	if m == nil {
		return ""
	}
	return m[1]
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func (s *DatasetService) path(dataset, kind, name string) (string, error) {
	if !validName(dataset) || !validName(name) {
		return "", fmt.Errorf("%q/%q: %w", dataset, name, ErrInvalidName)
	}
	return filepath.Join(s.root, dataset, kind, name), nil
}

func (s *DatasetService) read(dataset, kind, name string) ([]byte, error) {
	p, err := s.path(dataset, kind, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s/%s: %w", dataset, kind, name, ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (s *DatasetService) write(dataset, kind, name string, data []byte) error {
	p, err := s.path(dataset, kind, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create %s directory: %w", kind, err)
	}
	// 先写临时文件再重命名，避免读到半截的 PNG
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	utils.Logger.Debug("dataset file written",
		zap.String("dataset", dataset),
		zap.String("kind", kind),
		zap.String("name", name),
		zap.Int("bytes", len(data)))
	return nil
}

func (s *DatasetService) LoadLabel(dataset, label string) ([]byte, error) {
	return s.read(dataset, labelsDir, label)
}

func (s *DatasetService) SaveLabel(dataset, label string, png []byte) error {
	return s.write(dataset, labelsDir, label, png)
}

func (s *DatasetService) LoadImage(dataset, image string) ([]byte, error) {
	return s.read(dataset, imagesDir, image)
}

func (s *DatasetService) SaveImage(dataset, image string, data []byte) error {
	return s.write(dataset, imagesDir, image, data)
}
