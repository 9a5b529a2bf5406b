package phase

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

const backReference = "."

// HostSet 去重后的主机集合，保持文件中的出现顺序
type HostSet []models.HostSpec

func (s HostSet) Contains(h models.HostSpec) bool {
	for _, x := range s {
		if x == h {
			return true
		}
	}
	return false
}

func (s HostSet) Strings() []string {
	out := make([]string, len(s))
	for i, h := range s {
		out[i] = h.String()
	}
	return out
}

// Resolver 从 <Home>/<Directory>/<phase> 读取阶段文件
// 每次调用都重新读盘，不做缓存
type Resolver struct {
	Home      string
	Directory string
}

func NewResolver(home, directory string) *Resolver {
	return &Resolver{Home: home, Directory: directory}
}

// Path 返回阶段文件路径
func (r *Resolver) Path(phase string) string {
	return filepath.Join(r.Home, r.Directory, phase)
}

// Resolve 解析阶段文件并返回项目对应的主机集合
func (r *Resolver) Resolve(phase string, projectID uint64) (HostSet, error) {
	if err := models.ValidateName("phase", phase); err != nil {
		return nil, err
	}
	path := r.Path(phase)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrPhaseNotFound, phase, path)
		}
		return nil, fmt.Errorf("open phase file %s: %w", path, err)
	}
	defer f.Close()

	records, err := Parse(path, f)
	if err != nil {
		return nil, err
	}
	hosts, ok := records[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: project %d in %s", ErrProjectNotConfigured, projectID, path)
	}
	return hosts, nil
}

// Parse 解析阶段文件内容，path 仅用于错误信息
// 同一个项目 id 出现多次时后者覆盖前者
func Parse(path string, r io.Reader) (map[uint64]HostSet, error) {
	records := make(map[uint64]HostSet)
	var last HostSet
	hasLast := false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		id, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, &ParseError{Kind: MalformedProjectID, Path: path, Line: lineNo, Token: fields[0]}
		}
		tokens := fields[1:]

		var hosts HostSet
		switch {
		case len(tokens) > 0 && tokens[0] == backReference:
			if len(tokens) != 1 {
				return nil, &ParseError{Kind: MalformedBackReference, Path: path, Line: lineNo, Token: tokens[1]}
			}
			if !hasLast {
				return nil, &ParseError{Kind: DanglingBackReference, Path: path, Line: lineNo, Token: backReference}
			}
			hosts = append(HostSet(nil), last...)
		default:
			hosts = make(HostSet, 0, len(tokens))
			for _, token := range tokens {
				h, err := models.ParseHostSpec(token)
				if err != nil {
					return nil, &ParseError{Kind: InvalidHostSpec, Path: path, Line: lineNo, Token: token, Err: err}
				}
				if hosts.Contains(h) {
					return nil, &ParseError{Kind: DuplicateHost, Path: path, Line: lineNo, Token: token}
				}
				hosts = append(hosts, h)
			}
		}

		records[id] = hosts
		last = hosts
		hasLast = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read phase file %s: %w", path, err)
	}
	return records, nil
}
