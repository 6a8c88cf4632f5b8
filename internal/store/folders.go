package store

import (
	"fmt"

	"readlater/internal/domain"
)

// Folders returns the folder collection.
func (s *Store) Folders() ([]domain.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foldersLocked()
}

func (s *Store) foldersLocked() ([]domain.Folder, error) {
	var folders []domain.Folder
	if err := s.getBlob(nsFolders, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// AddFolder appends a folder.
func (s *Store) AddFolder(f domain.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folders, err := s.foldersLocked()
	if err != nil {
		return err
	}
	return s.putBlob(nsFolders, append(folders, f))
}

// RenameFolder updates a folder's name and color.
func (s *Store) RenameFolder(id, name, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folders, err := s.foldersLocked()
	if err != nil {
		return err
	}
	for i := range folders {
		if folders[i].ID != id {
			continue
		}
		folders[i].Name = name
		if color != "" {
			folders[i].Color = color
		}
		return s.putBlob(nsFolders, folders)
	}
	return fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
}

// DeleteFolder removes the folder. Articles referencing it are not deleted;
// they only lose the association.
func (s *Store) DeleteFolder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folders, err := s.foldersLocked()
	if err != nil {
		return err
	}
	kept := folders[:0]
	for _, f := range folders {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	if err := s.putBlob(nsFolders, kept); err != nil {
		return err
	}

	articles, err := s.articlesLocked()
	if err != nil {
		return err
	}
	changed := false
	for i := range articles {
		if articles[i].FolderID != nil && *articles[i].FolderID == id {
			articles[i].FolderID = nil
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.putBlob(nsArticles, articles)
}
