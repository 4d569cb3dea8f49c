package platform

import (
	"debug/elf"
	"path/filepath"
	"strings"
)

// ValidLibcTypes lists the recognized libc values.
// The libc affects binary compatibility and package availability:
//   - glibc: GNU C Library (most Linux distributions)
//   - musl: musl libc (Alpine Linux, Void Linux musl variant)
var ValidLibcTypes = []string{"glibc", "musl"}

// DetectLibc returns the libc implementation for the current system.
// Returns "musl" if the musl dynamic linker is present, "glibc" otherwise.
//
// Detection checks for /lib/ld-musl-*.so.1 which is the standard location
// for the musl dynamic linker across all architectures (x86_64, aarch64, etc.).
func DetectLibc() string {
	return DetectLibcWithRoot("")
}

// DetectLibcWithRoot detects libc with a custom root path for testing.
// An empty root uses the real filesystem root.
func DetectLibcWithRoot(root string) string {
	// Check for musl dynamic linker
	// Pattern matches: ld-musl-x86_64.so.1, ld-musl-aarch64.so.1, etc.
	pattern := filepath.Join(root, "lib", "ld-musl-*.so.1")
	matches, _ := filepath.Glob(pattern)
	if len(matches) > 0 {
		return "musl"
	}
	return "glibc"
}

// LibcForFamily returns the libc a linux_family ships by default, used by
// the linux planner to choose between glibc/musl archive variants when a
// target publishes both.
func LibcForFamily(family string) string {
	if family == "alpine" {
		return "musl"
	}
	return "glibc"
}

// detectLibcFromBinary inspects path's ELF program interpreter to report
// which libc it's dynamically linked against. Returns "" if path doesn't
// exist, isn't a readable ELF binary, or its interpreter doesn't match a
// known libc (e.g. a statically linked binary with no .interp section).
func detectLibcFromBinary(path string) string {
	f, err := elf.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	interp := f.Section(".interp")
	if interp == nil {
		return ""
	}
	data, err := interp.Data()
	if err != nil {
		return ""
	}
	s := strings.TrimRight(string(data), "\x00")
	switch {
	case strings.Contains(s, "musl"):
		return "musl"
	case strings.Contains(s, "ld-linux") || strings.Contains(s, "ld.so"):
		return "glibc"
	default:
		return ""
	}
}
