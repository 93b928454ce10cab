package util

import (
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
)

// ByteRange 闭区间 [Start, End]
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange 生成 206 响应的 Content-Range 头
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// UnsatisfiedRange 生成 416 响应的 Content-Range 头
func UnsatisfiedRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// ParseRange 解析单段 Range 头（bytes=start-end / bytes=start- / bytes=-suffix）。
// header 为空时返回 nil；格式错误返回 ErrValidation；区间无法满足返回 ErrRangeNotSatisfiable。
func ParseRange(header string, size int64) (*ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, fmt.Errorf("%w: malformed range %q", ErrValidation, header)
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, fmt.Errorf("%w: malformed range %q", ErrValidation, header)
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		// 后缀区间：最后 N 个字节
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix < 0 {
			return nil, fmt.Errorf("%w: malformed range %q", ErrValidation, header)
		}
		if suffix == 0 || size == 0 {
			return nil, ErrRangeNotSatisfiable
		}
		if suffix > size {
			suffix = size
		}
		return &ByteRange{Start: size - suffix, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("%w: malformed range %q", ErrValidation, header)
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return nil, fmt.Errorf("%w: malformed range %q", ErrValidation, header)
		}
	}

	if start > end || start >= size {
		return nil, ErrRangeNotSatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return &ByteRange{Start: start, End: end}, nil
}

// ContentTypeFor 按扩展名推断 MIME 类型
func ContentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return MimeOctetStream
}

// SafeFilename 只保留文件名部分，去掉目录
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
