package store

import "readlater/internal/domain"

// Sessions returns the persisted reading-session history, oldest first.
func (s *Store) Sessions() ([]domain.ReadingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsLocked()
}

func (s *Store) sessionsLocked() ([]domain.ReadingSession, error) {
	var sessions []domain.ReadingSession
	if err := s.getBlob(nsSessions, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// AppendSession adds a completed session, evicting the oldest entries
// beyond the retention cap.
func (s *Store) AppendSession(session domain.ReadingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.sessionsLocked()
	if err != nil {
		return err
	}

	sessions = append(sessions, session)
	if excess := len(sessions) - domain.SessionHistoryLimit; excess > 0 {
		sessions = sessions[excess:]
	}
	return s.putBlob(nsSessions, sessions)
}
