// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists the state of the sandbox backend in badger.
//
// Records are JSON values under typed key prefixes:
//
//	user/<username>     User
//	session/<token>     username
//	repo/<uuid>         Repo
//	workdir/<uuid>      Workdir
//	dataset/<uuid>      Dataset
//	commit/<sha1>       Commit
//
// Workdir changes are never stored: they are the difference between the
// workdir files and the files of the repository head, computed on read.
//
// # Thread Safety
//
// Store is safe for concurrent use; every operation runs in one badger
// transaction.
package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/datary"
	"github.com/AleutianAI/datary/pkg/pathtree"
	"github.com/AleutianAI/datary/pkg/tabular"
)

var (
	// ErrNotFound is returned for unknown records.
	ErrNotFound = errors.New("store: not found")

	// ErrUnauthorized is returned for empty credentials and unknown tokens.
	ErrUnauthorized = errors.New("store: unauthorized")

	// ErrInvalidChange is returned for malformed workdir changes.
	ErrInvalidChange = errors.New("store: invalid change")
)

// =============================================================================
// Records
// =============================================================================

// User is a sandbox account.
type User struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

// Repo is a repository record. Its JSON form is a superset of datary.Repo.
type Repo struct {
	UUID        string            `json:"uuid"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Visibility  string            `json:"visibility"`
	License     string            `json:"licenseName"`
	Amount      int               `json:"amount,omitempty"`
	Currency    string            `json:"currency"`
	Modality    string            `json:"modality"`
	Interval    string            `json:"interval"`
	Period      int               `json:"period"`
	Owner       string            `json:"owner"`
	Workdir     datary.WorkdirRef `json:"workdir"`
	Apex        datary.Apex       `json:"apex"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Workdir is the staging area of a repository: file key to dataset uuid.
type Workdir struct {
	UUID  string            `json:"uuid"`
	Repo  string            `json:"repo"`
	Files map[string]string `json:"files"`
}

// Dataset is one stored file content.
type Dataset struct {
	UUID string           `json:"uuid"`
	Kern any              `json:"kern"`
	Meta tabular.Metadata `json:"meta"`
}

// Commit is an immutable snapshot of a workdir.
type Commit struct {
	SHA1      string            `json:"sha1"`
	Repo      string            `json:"repo"`
	Parent    string            `json:"parent,omitempty"`
	Message   string            `json:"message"`
	Files     map[string]string `json:"files"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ChangeRequest is one POST to a workdir changes endpoint.
type ChangeRequest struct {
	Action   string
	Filemode string
	Dirname  string
	Basename string
	Inode    string
	Payload  *tabular.Payload
}

// Key returns the workdir file key the change addresses.
func (r ChangeRequest) Key() string {
	return commitdiff.JoinKey(strings.Trim(r.Dirname, "/"), r.Basename)
}

// =============================================================================
// Store
// =============================================================================

// Store is the badger-backed sandbox state.
type Store struct {
	db     *badger.DB
	stopGC func()
	now    func() time.Time
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	db, stop, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, stopGC: stop, now: time.Now}, nil
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	s.stopGC()
	return s.db.Close()
}

// =============================================================================
// Sessions
// =============================================================================

// SignIn accepts any non-empty credentials, creating the user on first
// sign-in, and returns a new session token.
func (s *Store) SignIn(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", ErrUnauthorized
	}
	token := uuid.NewString()
	err := s.update(ctx, func(txn *badger.Txn) error {
		var user User
		switch err := getJSON(txn, "user/"+username, &user); {
		case errors.Is(err, ErrNotFound):
			user = User{UUID: uuid.NewString(), Username: username}
			if err := setJSON(txn, "user/"+username, user); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		return setJSON(txn, "session/"+token, username)
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// SignOut invalidates token.
func (s *Store) SignOut(ctx context.Context, token string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte("session/" + token))
	})
}

// Authenticate returns the user owning token.
func (s *Store) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthorized
	}
	var user User
	err := s.view(ctx, func(txn *badger.Txn) error {
		var username string
		if err := getJSON(txn, "session/"+token, &username); err != nil {
			return err
		}
		return getJSON(txn, "user/"+username, &user)
	})
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUnauthorized
	}
	return user, err
}

// Members lists up to limit users in username order.
func (s *Store) Members(ctx context.Context, limit int) ([]User, error) {
	var users []User
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		users, err = scanJSON[User](txn, "user/")
		return err
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, err
}

// =============================================================================
// Repositories
// =============================================================================

// CreateRepo stores repo for owner with a fresh uuid and an empty workdir.
func (s *Store) CreateRepo(ctx context.Context, owner User, repo Repo) (Repo, error) {
	repo.UUID = uuid.NewString()
	repo.Owner = owner.UUID
	repo.Workdir = datary.WorkdirRef{UUID: uuid.NewString()}
	repo.Apex = datary.Apex{}
	repo.CreatedAt = s.now().UTC()

	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, "repo/"+repo.UUID, repo); err != nil {
			return err
		}
		return setJSON(txn, "workdir/"+repo.Workdir.UUID, Workdir{
			UUID:  repo.Workdir.UUID,
			Repo:  repo.UUID,
			Files: map[string]string{},
		})
	})
	return repo, err
}

// Repo returns one repository.
func (s *Store) Repo(ctx context.Context, repoUUID string) (Repo, error) {
	var repo Repo
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, "repo/"+repoUUID, &repo)
	})
	return repo, err
}

// ListRepos returns the repositories of owner in creation order.
func (s *Store) ListRepos(ctx context.Context, owner User) ([]Repo, error) {
	var all []Repo
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		all, err = scanJSON[Repo](txn, "repo/")
		return err
	})
	if err != nil {
		return nil, err
	}
	owned := make([]Repo, 0, len(all))
	for _, r := range all {
		if r.Owner == owner.UUID {
			owned = append(owned, r)
		}
	}
	slices.SortStableFunc(owned, func(a, b Repo) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return owned, nil
}

// DeleteRepo removes a repository and its workdir. Commits and datasets are
// kept; they are unreachable afterwards.
func (s *Store) DeleteRepo(ctx context.Context, repoUUID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var repo Repo
		if err := getJSON(txn, "repo/"+repoUUID, &repo); err != nil {
			return err
		}
		if err := txn.Delete([]byte("workdir/" + repo.Workdir.UUID)); err != nil {
			return err
		}
		return txn.Delete([]byte("repo/" + repoUUID))
	})
}

// =============================================================================
// Workdirs
// =============================================================================

// Workdir returns one workdir.
func (s *Store) Workdir(ctx context.Context, wdirUUID string) (Workdir, error) {
	var wdir Workdir
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, "workdir/"+wdirUUID, &wdir)
	})
	return wdir, err
}

// WorkdirChanges compares a workdir with the head of its repository.
func (s *Store) WorkdirChanges(ctx context.Context, wdirUUID string) (datary.Changes, error) {
	changes := datary.Changes{
		Added:    []datary.Change{},
		Modified: []datary.Change{},
		Removed:  []datary.Change{},
		Renamed:  []datary.Change{},
	}
	err := s.view(ctx, func(txn *badger.Txn) error {
		wdir, head, err := loadWorkdirAndHead(txn, wdirUUID)
		if err != nil {
			return err
		}
		for _, key := range slices.Sorted(maps.Keys(wdir.Files)) {
			dataset := wdir.Files[key]
			committed, ok := head[key]
			switch {
			case !ok:
				changes.Added = append(changes.Added, change(key, dataset))
			case committed != dataset:
				changes.Modified = append(changes.Modified, change(key, dataset))
			}
		}
		for _, key := range slices.Sorted(maps.Keys(head)) {
			if _, ok := wdir.Files[key]; !ok {
				changes.Removed = append(changes.Removed, change(key, head[key]))
			}
		}
		return nil
	})
	return changes, err
}

func change(key, inode string) datary.Change {
	dir, name := "", key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		dir, name = key[:i], key[i+1:]
	}
	return datary.Change{Dirname: dir, Basename: name, Inode: inode}
}

// loadWorkdirAndHead returns a workdir and the files of its repository head.
func loadWorkdirAndHead(txn *badger.Txn, wdirUUID string) (Workdir, map[string]string, error) {
	var wdir Workdir
	if err := getJSON(txn, "workdir/"+wdirUUID, &wdir); err != nil {
		return Workdir{}, nil, err
	}
	var repo Repo
	if err := getJSON(txn, "repo/"+wdir.Repo, &repo); err != nil {
		return Workdir{}, nil, err
	}
	head := map[string]string{}
	if repo.Apex.Commit != "" {
		var commit Commit
		if err := getJSON(txn, "commit/"+repo.Apex.Commit, &commit); err != nil {
			return Workdir{}, nil, err
		}
		head = commit.Files
	}
	if wdir.Files == nil {
		wdir.Files = map[string]string{}
	}
	return wdir, head, nil
}

// ApplyChange stages one change in a workdir.
//
// Description:
//
//	"add" and "modify" store the payload as a new dataset, stamping
//	meta.sha1 and meta.size, and point the file key at it. An "add" with
//	directory filemode is accepted and ignored since directories are
//	implicit. "remove" drops the file addressed by inode, or by
//	dirname/basename when no inode is given.
//
// Outputs:
//
//	string - The dataset uuid written, "" for removals.
//	error - ErrInvalidChange for malformed requests, ErrNotFound for
//	        unknown workdirs or files.
func (s *Store) ApplyChange(ctx context.Context, wdirUUID string, req ChangeRequest) (string, error) {
	var written string
	err := s.update(ctx, func(txn *badger.Txn) error {
		var wdir Workdir
		if err := getJSON(txn, "workdir/"+wdirUUID, &wdir); err != nil {
			return err
		}
		if wdir.Files == nil {
			wdir.Files = map[string]string{}
		}

		switch req.Action {
		case datary.ChangeAdd, datary.ChangeModify:
			if req.Action == datary.ChangeAdd && req.Filemode == datary.FileModeDir {
				return nil
			}
			if req.Basename == "" {
				return fmt.Errorf("%w: %s without basename", ErrInvalidChange, req.Action)
			}
			dataset, err := newDataset(req.Payload)
			if err != nil {
				return err
			}
			if err := setJSON(txn, "dataset/"+dataset.UUID, dataset); err != nil {
				return err
			}
			wdir.Files[req.Key()] = dataset.UUID
			written = dataset.UUID

		case datary.ChangeRemove:
			key := req.Key()
			if req.Inode != "" {
				key = ""
				for k, id := range wdir.Files {
					if id == req.Inode {
						key = k
						break
					}
				}
			}
			if _, ok := wdir.Files[key]; key == "" || !ok {
				return fmt.Errorf("%w: file %q", ErrNotFound, req.Key())
			}
			delete(wdir.Files, key)

		default:
			return fmt.Errorf("%w: unknown action %q", ErrInvalidChange, req.Action)
		}
		return setJSON(txn, "workdir/"+wdirUUID, wdir)
	})
	return written, err
}

// ClearChanges resets a workdir to the head of its repository.
func (s *Store) ClearChanges(ctx context.Context, wdirUUID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		wdir, head, err := loadWorkdirAndHead(txn, wdirUUID)
		if err != nil {
			return err
		}
		wdir.Files = maps.Clone(head)
		return setJSON(txn, "workdir/"+wdirUUID, wdir)
	})
}

// =============================================================================
// Commits and datasets
// =============================================================================

// Commit snapshots the workdir of a repository and moves the apex to it.
func (s *Store) Commit(ctx context.Context, repoUUID, message string) (Commit, error) {
	var commit Commit
	err := s.update(ctx, func(txn *badger.Txn) error {
		var repo Repo
		if err := getJSON(txn, "repo/"+repoUUID, &repo); err != nil {
			return err
		}
		var wdir Workdir
		if err := getJSON(txn, "workdir/"+repo.Workdir.UUID, &wdir); err != nil {
			return err
		}

		commit = Commit{
			Repo:      repoUUID,
			Parent:    repo.Apex.Commit,
			Message:   message,
			Files:     maps.Clone(wdir.Files),
			CreatedAt: s.now().UTC(),
		}
		if commit.Files == nil {
			commit.Files = map[string]string{}
		}
		sha, err := commitSHA1(commit)
		if err != nil {
			return err
		}
		commit.SHA1 = sha

		if err := setJSON(txn, "commit/"+sha, commit); err != nil {
			return err
		}
		repo.Apex.Commit = sha
		return setJSON(txn, "repo/"+repoUUID, repo)
	})
	return commit, err
}

// GetCommit returns one commit.
func (s *Store) GetCommit(ctx context.Context, sha string) (Commit, error) {
	var commit Commit
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, "commit/"+sha, &commit)
	})
	return commit, err
}

// Dataset returns one dataset.
func (s *Store) Dataset(ctx context.Context, datasetUUID string) (Dataset, error) {
	var dataset Dataset
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, "dataset/"+datasetUUID, &dataset)
	})
	return dataset, err
}

// FilesToTree nests file keys into a filetree of dataset uuids.
//
// Keys are placed in sorted order. A key that collides with one already
// placed ("a" and "a/b") is left out of the tree and its error returned.
func FilesToTree(files map[string]string) (map[string]any, []error) {
	tree := map[string]any{}
	var conflicts []error
	for _, key := range slices.Sorted(maps.Keys(files)) {
		if err := pathtree.SetLeafBy(tree, key, pathtree.SlashSeparator, files[key]); err != nil {
			conflicts = append(conflicts, err)
		}
	}
	return tree, conflicts
}

func newDataset(payload *tabular.Payload) (Dataset, error) {
	var kern any
	meta := tabular.Metadata{}
	if payload != nil {
		kern = payload.Kern
		if payload.Meta != nil {
			meta = payload.Meta.Clone()
		}
	}
	delete(meta, tabular.MetaSHA1)

	// The fingerprint covers the payload as submitted so clients can
	// compute it locally.
	sha, err := tabular.Fingerprint(tabular.Payload{Kern: kern, Meta: meta})
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	encodedKern, err := json.Marshal(kern)
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: kern: %v", ErrInvalidChange, err)
	}
	if _, ok := meta[tabular.MetaSize]; !ok {
		meta[tabular.MetaSize] = len(encodedKern)
	}
	meta[tabular.MetaSHA1] = sha
	return Dataset{UUID: uuid.NewString(), Kern: kern, Meta: meta}, nil
}

func commitSHA1(c Commit) (string, error) {
	encoded, err := json.Marshal(struct {
		Repo, Parent, Message string
		Files                 map[string]string
		At                    int64
	}{c.Repo, c.Parent, c.Message, c.Files, c.CreatedAt.UnixNano()})
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(encoded)
	return hex.EncodeToString(sum[:]), nil
}
