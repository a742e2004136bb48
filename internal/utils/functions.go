package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	u "net/url"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// FileNameFromURL returns the last non-empty path segment of rawURL, or "".
func FileNameFromURL(rawURL string) string {
	parsedURL, err := u.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(parsedURL.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}

// FileNameFromContentDisposition extracts and sanitizes the filename parameter.
func FileNameFromContentDisposition(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return FileNameRegex.ReplaceAllString(fn, "_")
	}
	// mime decodes RFC 2231 values into "filename" already; this covers servers
	// that send the raw form
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
		unescaped, err := u.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
		if err == nil && unescaped != "" {
			return FileNameRegex.ReplaceAllString(unescaped, "_")
		}
	}
	return ""
}

// ResolveOutputPath picks the explicit path, then the server-suggested name,
// then the URL's last segment, then DefaultFileName.
func ResolveOutputPath(explicit, suggested, rawURL string) string {
	if explicit != "" {
		return explicit
	}
	if suggested != "" {
		return suggested
	}
	if name := FileNameFromURL(rawURL); name != "" {
		return name
	}
	return DefaultFileName
}

// ExistingSize returns the size of the file at outputPath, 0 if it does not exist.
func ExistingSize(outputPath string) (int64, error) {
	info, err := os.Stat(outputPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %w", ErrIOFailure, outputPath, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrIOFailure, outputPath)
	}
	return info.Size(), nil
}

func ReadDownloadList(filePath string) ([]DownloadEntry, error) {
	log := GetLogger("config")
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}
	var entries []DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %w", err)
	}
	for i, entry := range entries {
		if entry.URL == "" {
			return nil, fmt.Errorf("missing link for entry %d", i+1)
		}
	}
	log.Debug().Int("entries", len(entries)).Str("file", filePath).Msg("read download list")
	return entries, nil
}
