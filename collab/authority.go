package collab

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"civicspotter/models"
)

// DirectoryAuthorityFinder resolves authority contacts from a YAML directory
// file keyed by city and issue type:
//
//	faridabad:
//	  pothole:
//	    department: Municipal Corporation of Faridabad
//	    email: roads@mcfbd.example.org
//	    cc: [commissioner@mcfbd.example.org]
//	  default:
//	    email: helpdesk@mcfbd.example.org
//
// Lookups fall back from (city, type) to (city, default). Missing entries
// yield an empty contact, never an error that would block the workflow.
type DirectoryAuthorityFinder struct {
	directory map[string]map[string]directoryEntry
}

type directoryEntry struct {
	Department string   `yaml:"department"`
	Email      string   `yaml:"email"`
	CC         []string `yaml:"cc"`
}

var _ AuthorityFinder = (*DirectoryAuthorityFinder)(nil)

// NewDirectoryAuthorityFinder loads the directory file. A missing path yields
// an empty directory rather than an error.
func NewDirectoryAuthorityFinder(path string) (*DirectoryAuthorityFinder, error) {
	f := &DirectoryAuthorityFinder{directory: map[string]map[string]directoryEntry{}}
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("reading authority directory: %w", err)
	}
	if err := yaml.Unmarshal(data, &f.directory); err != nil {
		return nil, fmt.Errorf("parsing authority directory: %w", err)
	}
	return f, nil
}

// Discover returns the contact for the record's city and issue type. Partial
// or empty results are acceptable.
func (f *DirectoryAuthorityFinder) Discover(ctx context.Context, rec *models.IssueRecord) (models.ContactInfo, error) {
	city := strings.ToLower(strings.TrimSpace(rec.Metadata.Address.City))
	issueType := strings.ToLower(strings.TrimSpace(rec.IssueType))

	byType, ok := f.directory[city]
	if !ok {
		return models.ContactInfo{}, nil
	}
	entry, ok := byType[issueType]
	if !ok {
		entry, ok = byType["default"]
	}
	if !ok {
		return models.ContactInfo{}, nil
	}
	return models.ContactInfo{
		Department: entry.Department,
		Email:      entry.Email,
		CC:         entry.CC,
	}, nil
}
