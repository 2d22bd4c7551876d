package storage

import "os"

// WithDirMode sets the permissions of the directories created.
func WithDirMode(m os.FileMode) Option {
	return func(s *Storage) {
		s.dirMode = m
	}
}

// WithFileMode sets the permissions of the files created.
func WithFileMode(m os.FileMode) Option {
	return func(s *Storage) {
		s.fileMode = m
	}
}

// Option configures storage behavior through the functional options pattern.
type Option func(*Storage)
