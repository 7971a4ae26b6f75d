package budget

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// ProjectsFileName is the project store file name inside the data directory.
const ProjectsFileName = "projects.yaml"

// ErrProjectNotFound is returned for unknown project ids.
var ErrProjectNotFound = errors.New("project not found")

// projectsFile is the on-disk layout of the project store.
type projectsFile struct {
	Projects    []models.ProjectBudget `yaml:"projects"`
	GlobalFired []string               `yaml:"global_fired,omitempty"`
}

// ProjectStore persists project budgets, spend and fired alert ids.
// Every mutation rewrites the file atomically.
type ProjectStore struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	data projectsFile
}

// OpenProjectStore loads the store at path, creating an empty one if the file does not exist.
func OpenProjectStore(path string) (*ProjectStore, error) {
	s := &ProjectStore{path: path, now: time.Now}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read projects: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse projects %s: %w", path, err)
	}
	return s, nil
}

// Add creates a project with a total budget.
func (s *ProjectStore) Add(name string, totalBudget float64) (models.ProjectBudget, error) {
	if name == "" {
		return models.ProjectBudget{}, errors.New("project name is required")
	}
	if totalBudget <= 0 {
		return models.ProjectBudget{}, fmt.Errorf("project budget must be positive, got %v", totalBudget)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := models.ProjectBudget{
		ID:          uuid.New().String()[:8],
		Name:        name,
		TotalBudget: totalBudget,
		CreatedAt:   s.now().UTC(),
	}
	s.data.Projects = append(s.data.Projects, p)
	if err := s.saveLocked(); err != nil {
		s.data.Projects = s.data.Projects[:len(s.data.Projects)-1]
		return models.ProjectBudget{}, err
	}
	return p, nil
}

// Get returns a project by id.
func (s *ProjectStore) Get(id string) (models.ProjectBudget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findLocked(id); p != nil {
		return clone(*p), true
	}
	return models.ProjectBudget{}, false
}

// List returns every project sorted by creation time.
func (s *ProjectStore) List() []models.ProjectBudget {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProjectBudget, 0, len(s.data.Projects))
	for _, p := range s.data.Projects {
		out = append(out, clone(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// AddSpend adds a non-negative amount to a project's spend.
func (s *ProjectStore) AddSpend(id string, amount float64) error {
	if amount < 0 {
		amount = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findLocked(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	p.Spent += amount
	return s.saveLocked()
}

// RecomputeSpend resets every project's spend to the sum of its linked records.
func (s *ProjectStore) RecomputeSpend(records []models.UsageRecord) error {
	totals := make(map[string]float64)
	for _, r := range records {
		if r.ProjectID != "" && r.CostUSD > 0 {
			totals[r.ProjectID] += r.CostUSD
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Projects {
		s.data.Projects[i].Spent = totals[s.data.Projects[i].ID]
	}
	return s.saveLocked()
}

// HasFired reports whether alertID fired for the project, or globally when projectID is empty.
func (s *ProjectStore) HasFired(projectID, alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if projectID == "" {
		return contains(s.data.GlobalFired, alertID)
	}
	if p := s.findLocked(projectID); p != nil {
		return p.HasFired(alertID)
	}
	return false
}

// MarkFired records alertID as fired for the project, or globally when projectID is empty.
func (s *ProjectStore) MarkFired(projectID, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if projectID == "" {
		if contains(s.data.GlobalFired, alertID) {
			return nil
		}
		s.data.GlobalFired = append(s.data.GlobalFired, alertID)
		return s.saveLocked()
	}
	p := s.findLocked(projectID)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if p.HasFired(alertID) {
		return nil
	}
	p.FiredAlerts = append(p.FiredAlerts, alertID)
	return s.saveLocked()
}

func (s *ProjectStore) findLocked(id string) *models.ProjectBudget {
	for i := range s.data.Projects {
		if s.data.Projects[i].ID == id {
			return &s.data.Projects[i]
		}
	}
	return nil
}

// saveLocked writes the store to a temp file and renames it into place.
// Must be called with lock held.
func (s *ProjectStore) saveLocked() error {
	data, err := yaml.Marshal(&s.data)
	if err != nil {
		return fmt.Errorf("marshal projects: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create projects directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".projects-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write projects: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close projects: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace projects: %w", err)
	}
	return nil
}

func clone(p models.ProjectBudget) models.ProjectBudget {
	p.FiredAlerts = append([]string(nil), p.FiredAlerts...)
	return p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
