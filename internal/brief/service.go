// Package brief keeps one versioned analytical brief per dossier. Each
// dossier gets its own git repository on disk with the brief stored as
// brief.json on main, so every revision is retrievable and comparable.
package brief

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Content is the bilingual payload of a dossier brief.
type Content struct {
	TitleEN    string   `json:"titleEn"`
	TitleAR    string   `json:"titleAr"`
	SummaryEN  string   `json:"summaryEn"`
	SummaryAR  string   `json:"summaryAr"`
	KeyPointsEN []string `json:"keyPointsEn,omitempty"`
	KeyPointsAR []string `json:"keyPointsAr,omitempty"`
}

// CommitInfo describes one revision of a brief.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureRepo initialises the brief repository for a dossier if it does not
// exist yet, committing the initial content to main.
func (s *Service) EnsureRepo(dossierID string, initial Content, author string) error {
	lock := s.dossierLock(dossierID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(dossierID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial brief: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "brief.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial brief: %w", err)
	}
	if _, err := worktree.Add("brief.json"); err != nil {
		return fmt.Errorf("git add initial brief: %w", err)
	}
	hash, err := worktree.Commit("Create dossier brief", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial brief: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// Save commits a new revision of the brief to main.
func (s *Service) Save(dossierID string, content Content, author, message string) (CommitInfo, error) {
	lock := s.dossierLock(dossierID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(dossierID))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := s.commit(repo, content, author, message)
	if err != nil {
		return CommitInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// Head returns the current brief and the revision it came from.
func (s *Service) Head(dossierID string) (Content, CommitInfo, error) {
	lock := s.dossierLock(dossierID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(dossierID))
	if err != nil {
		return Content{}, CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return Content{}, CommitInfo{}, fmt.Errorf("resolve main: %w", err)
	}

	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Content{}, CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}

	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return Content{}, CommitInfo{}, err
	}
	return content, toCommitInfo(commitObj), nil
}

// Revision returns the brief as it was at a specific commit hash.
func (s *Service) Revision(dossierID, hash string) (Content, error) {
	lock := s.dossierLock(dossierID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(dossierID))
	if err != nil {
		return Content{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Content{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readContentFromCommit(commitObj)
}

// History lists revisions of the brief, newest first.
func (s *Service) History(dossierID string, limit int) ([]CommitInfo, error) {
	lock := s.dossierLock(dossierID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(dossierID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Exists reports whether a brief repository has been created for the dossier.
func (s *Service) Exists(dossierID string) bool {
	_, err := os.Stat(s.repoPath(dossierID))
	return err == nil
}

func (s *Service) repoPath(dossierID string) string {
	return filepath.Join(s.baseDir, dossierID)
}

func (s *Service) dossierLock(dossierID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[dossierID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[dossierID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, content Content, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal brief: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "brief.json"), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write brief.json: %w", err)
	}

	if _, err := worktree.Add("brief.json"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add brief: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit brief: %w", err)
	}
	return hash, nil
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File("brief.json")
	if err != nil {
		return Content{}, fmt.Errorf("load brief.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open brief reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read brief bytes: %w", err)
	}

	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return Content{}, fmt.Errorf("decode brief content: %w", err)
	}
	return content, nil
}

// DiffFields lists the scalar fields that differ between two revisions.
func DiffFields(from, to Content) []map[string]string {
	type pair struct {
		field  string
		before string
		after  string
	}
	pairs := []pair{
		{field: "titleEn", before: from.TitleEN, after: to.TitleEN},
		{field: "titleAr", before: from.TitleAR, after: to.TitleAR},
		{field: "summaryEn", before: from.SummaryEN, after: to.SummaryEN},
		{field: "summaryAr", before: from.SummaryAR, after: to.SummaryAR},
	}
	result := make([]map[string]string, 0)
	for _, item := range pairs {
		if item.before == item.after {
			continue
		}
		result = append(result, map[string]string{
			"field":  item.field,
			"before": item.before,
			"after":  item.after,
		})
	}
	if !equalPoints(from.KeyPointsEN, to.KeyPointsEN) {
		result = append(result, map[string]string{
			"field":  "keyPointsEn",
			"before": "[list]",
			"after":  "[list]",
		})
	}
	if !equalPoints(from.KeyPointsAR, to.KeyPointsAR) {
		result = append(result, map[string]string{
			"field":  "keyPointsAr",
			"before": "[list]",
			"after":  "[list]",
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i]["field"] < result[j]["field"]
	})
	return result
}

// HasChanges reports whether two revisions differ at all.
func HasChanges(from, to Content) bool {
	if from.TitleEN != to.TitleEN ||
		from.TitleAR != to.TitleAR ||
		from.SummaryEN != to.SummaryEN ||
		from.SummaryAR != to.SummaryAR {
		return true
	}
	return !equalPoints(from.KeyPointsEN, to.KeyPointsEN) ||
		!equalPoints(from.KeyPointsAR, to.KeyPointsAR)
}

func equalPoints(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.dossier.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
