// internal/corpus/loader.go
package corpus

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Corphon/ClientInterviewMCP/internal/errors"
	"github.com/Corphon/ClientInterviewMCP/internal/models"
)

// Format 语料序列化格式
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

//go:embed data/rajesh_kumar.yaml
var defaultCorpus []byte

// DefaultCorpus 返回随程序打包的保释面谈语料
func DefaultCorpus() (*models.TrainingCorpus, error) {
	c, err := ParseCorpus(defaultCorpus, FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("解析内置语料失败: %w", err)
	}
	return c, nil
}

// FormatFromPath 根据扩展名判断语料格式
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("不支持的语料文件扩展名: %s", path), nil)
	}
}

// ParseCorpus 解析语料内容
func ParseCorpus(data []byte, format Format) (*models.TrainingCorpus, error) {
	var c models.TrainingCorpus
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &c)
	case FormatYAML:
		err = yaml.Unmarshal(data, &c)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("不支持的语料格式: %s", format), nil)
	}
	if err != nil {
		return nil, apperrors.NewMalformedCorpusError("", fmt.Sprintf("解析%s失败: %v", format, err))
	}
	return &c, nil
}

// LoadCorpus 从文件读取语料，格式由扩展名决定
func LoadCorpus(path string) (*models.TrainingCorpus, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError("读取语料文件失败", err)
	}
	return ParseCorpus(data, format)
}

// MarshalIndex 序列化编译结果；map 键按字典序输出，同一语料得到相同字节
func MarshalIndex(idx *models.CompiledIndex) ([]byte, error) {
	if idx == nil {
		return nil, apperrors.NewValidationError("编译结果为空", nil)
	}
	return json.MarshalIndent(idx, "", "  ")
}

// UnmarshalIndex 反序列化编译结果并检查一致性
func UnmarshalIndex(data []byte) (*models.CompiledIndex, error) {
	var idx models.CompiledIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, apperrors.NewMalformedCorpusError("", fmt.Sprintf("解析编译结果失败: %v", err))
	}
	if err := checkIndex(&idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// SaveIndex 将编译结果写入文件
func SaveIndex(path string, idx *models.CompiledIndex) error {
	data, err := MarshalIndex(idx)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.NewStorageError("创建索引目录失败", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.NewStorageError("写入编译结果失败", err)
	}
	return nil
}

// LoadIndex 读取已编译的索引
func LoadIndex(path string) (*models.CompiledIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError("读取编译结果失败", err)
	}
	return UnmarshalIndex(data)
}

// checkIndex 加载外部索引时的最低限度校验
func checkIndex(idx *models.CompiledIndex) error {
	if len(idx.IntentOrder) != len(idx.Intents) {
		return apperrors.NewMalformedCorpusError("", "意图顺序与意图表不一致")
	}
	for _, id := range idx.IntentOrder {
		entry, ok := idx.Intents[id]
		if !ok {
			return apperrors.NewMalformedCorpusError(id, "出现在意图顺序中但不在意图表里")
		}
		if len(entry.Responses) == 0 {
			return apperrors.NewMalformedCorpusError(id, "意图没有任何回复")
		}
	}
	for _, input := range idx.Inputs {
		if _, ok := idx.Intents[input.Intent]; !ok {
			return apperrors.NewMalformedCorpusError(input.Intent, "示例输入所属的意图未声明")
		}
	}
	return nil
}
