package vtile

import (
	"errors"
	"fmt"
)

// Decode failures. They reach callers wrapped in a *DecodeError.
var (
	ErrTruncated         = errors.New("truncated geometry")
	ErrUnknownCommand    = errors.New("unknown geometry command")
	ErrInvalidCount      = errors.New("invalid command count")
	ErrUnexpectedCommand = errors.New("unexpected geometry command")
	ErrOddTags           = errors.New("odd number of feature tags")
	ErrTagIndex          = errors.New("tag index out of dictionary range")
	ErrInvalidValue      = errors.New("value must have exactly one member set")
	ErrInvalidExtent     = errors.New("layer extent must be positive")
	ErrMalformed         = errors.New("malformed tile message")
)

//ErrLayerNotFound 瓦片中不存在该图层
var ErrLayerNotFound = errors.New("layer not found")

//ErrDuplicateLayer 同一瓦片中图层重名
var ErrDuplicateLayer = errors.New("duplicate layer name")

//ErrCountOverflow 命令参数个数超出29位
var ErrCountOverflow = errors.New("command count overflows 29 bits")

//DecodeError 解码错误, Feature为-1时表示图层级错误
type DecodeError struct {
	Layer   string
	Feature int
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Layer == "" && e.Feature < 0 {
		return fmt.Sprintf("decode tile: %v", e.Err)
	}
	if e.Feature < 0 {
		return fmt.Sprintf("decode layer %q: %v", e.Layer, e.Err)
	}
	return fmt.Sprintf("decode layer %q feature %d: %v", e.Layer, e.Feature, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// malformed wraps a protobuf level failure of the tile or of a layer.
func malformed(layer string, err error) error {
	return &DecodeError{Layer: layer, Feature: -1, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
}
