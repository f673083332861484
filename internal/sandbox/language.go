package sandbox

import (
	"fmt"
	"sort"
	"time"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

const (
	inputFile  = "input.txt"
	workingDir = "/sandbox"
)

// Profile is the runtime configuration for one allow-listed language.
type Profile struct {
	Language         domain.Language
	Image            string
	SourceFile       string
	TimeLimit        time.Duration
	MemoryLimitBytes int64

	// Command runs inside the container with workingDir as cwd.
	Command []string

	// nsjail backend
	NsjailConfig string
	CompileArgs  []string
	RunArgs      []string
}

// PythonProfile returns the python profile with the given image and limits.
func PythonProfile(image string, timeLimit time.Duration, memoryBytes int64) Profile {
	return Profile{
		Language:         domain.LangPython,
		Image:            image,
		SourceFile:       "code.py",
		TimeLimit:        timeLimit,
		MemoryLimitBytes: memoryBytes,
		Command:          []string{"sh", "-c", "python3 code.py < " + inputFile},
		NsjailConfig:     "python.cfg",
		RunArgs:          []string{"/usr/bin/python3", "/tmp/work/code.py"},
	}
}

// CppProfile returns the C++ profile. Compilation happens inside the same
// session, so it counts against the time limit on the docker backend.
func CppProfile(image string, timeLimit time.Duration, memoryBytes int64) Profile {
	return Profile{
		Language:         domain.LangCpp,
		Image:            image,
		SourceFile:       "code.cpp",
		TimeLimit:        timeLimit,
		MemoryLimitBytes: memoryBytes,
		Command:          []string{"sh", "-c", "g++ -O2 -std=c++17 -o main code.cpp && ./main < " + inputFile},
		NsjailConfig:     "cpp.cfg",
		CompileArgs:      []string{"/usr/bin/g++", "-std=c++17", "-O2", "-o", "/tmp/work/program", "/tmp/work/code.cpp"},
		RunArgs:          []string{"/tmp/work/program"},
	}
}

// Registry is the language allow-list.
type Registry struct {
	profiles map[domain.Language]Profile
}

// NewRegistry builds a registry from the given profiles. Later profiles
// replace earlier ones for the same language.
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{profiles: make(map[domain.Language]Profile, len(profiles))}
	for _, p := range profiles {
		r.profiles[p.Language] = p
	}
	return r
}

// Lookup returns the profile for lang or ErrUnsupportedLanguage.
func (r *Registry) Lookup(lang domain.Language) (Profile, error) {
	p, ok := r.profiles[lang]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, lang)
	}
	return p, nil
}

// Supports reports whether lang is on the allow-list.
func (r *Registry) Supports(lang domain.Language) bool {
	_, ok := r.profiles[lang]
	return ok
}

// Profiles returns every profile sorted by language name.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// Images returns the distinct images referenced by the registry.
func (r *Registry) Images() []string {
	seen := make(map[string]struct{})
	var images []string
	for _, p := range r.Profiles() {
		if _, ok := seen[p.Image]; ok {
			continue
		}
		seen[p.Image] = struct{}{}
		images = append(images, p.Image)
	}
	return images
}

// Info converts the registry into the public language listing.
func (r *Registry) Info() []domain.LanguageInfo {
	profiles := r.Profiles()
	out := make([]domain.LanguageInfo, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, domain.LanguageInfo{
			Name:          p.Language,
			Image:         p.Image,
			TimeLimitMs:   p.TimeLimit.Milliseconds(),
			MemoryLimitMB: p.MemoryLimitBytes >> 20,
		})
	}
	return out
}
