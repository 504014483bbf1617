// internal/memory/episodes.go
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Episode groups memories that happened close together in time. Episodes are
// derived data: they can be rebuilt from memory timestamps without loss.
type Episode struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	StartedAt time.Time `gorm:"not null;index" json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Open      bool      `gorm:"not null;default:true;index" json:"open"`
	Summary   string    `gorm:"type:text" json:"summary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Episode) TableName() string {
	return "psyche_episodes"
}

// EpisodeMember records one memory's position inside an episode
type EpisodeMember struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EpisodeID string    `gorm:"not null;index:idx_episode_pos" json:"episode_id"`
	MemoryID  string    `gorm:"not null;index" json:"memory_id"`
	Position  int       `gorm:"not null;index:idx_episode_pos" json:"position"`
	JoinedAt  time.Time `gorm:"not null" json:"joined_at"`
}

// TableName specifies the table name for GORM
func (EpisodeMember) TableName() string {
	return "psyche_episode_members"
}

// Segmenter assigns new memories to time-contiguous episodes
type Segmenter struct {
	db  *gorm.DB
	gap time.Duration // Max silence before a new episode opens
}

// NewSegmenter creates an episode segmenter with the given gap threshold
func NewSegmenter(db *gorm.DB, gap time.Duration) *Segmenter {
	return &Segmenter{db: db, gap: gap}
}

// Assign places a memory into the most recent open episode, or closes it and
// opens a new one when the gap since the last member exceeds the threshold.
// Returns the episode the memory joined.
func (s *Segmenter) Assign(ctx context.Context, memoryID string, at time.Time) (*Episode, error) {
	var episode *Episode

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Episode
		err := tx.Where("open = ?", true).Order("started_at DESC").First(&current).Error

		switch {
		case err == gorm.ErrRecordNotFound:
			episode = nil
		case err != nil:
			return fmt.Errorf("failed to load open episode: %w", err)
		default:
			var last EpisodeMember
			lerr := tx.Where("episode_id = ?", current.ID).Order("position DESC").First(&last).Error
			if lerr != nil && lerr != gorm.ErrRecordNotFound {
				return fmt.Errorf("failed to load last episode member: %w", lerr)
			}

			anchor := current.StartedAt
			if lerr == nil {
				anchor = last.JoinedAt
			}

			if at.Sub(anchor) > s.gap {
				// Too long since the last member: close this episode
				if uerr := tx.Model(&Episode{}).Where("id = ?", current.ID).
					Updates(map[string]interface{}{"open": false, "ended_at": anchor}).Error; uerr != nil {
					return fmt.Errorf("failed to close episode: %w", uerr)
				}
			} else {
				episode = &current
			}
		}

		if episode == nil {
			episode = &Episode{
				ID:        uuid.New().String(),
				StartedAt: at,
				Open:      true,
			}
			if cerr := tx.Create(episode).Error; cerr != nil {
				return fmt.Errorf("failed to open episode: %w", cerr)
			}
		}

		var count int64
		if cerr := tx.Model(&EpisodeMember{}).Where("episode_id = ?", episode.ID).Count(&count).Error; cerr != nil {
			return fmt.Errorf("failed to count episode members: %w", cerr)
		}

		member := EpisodeMember{
			EpisodeID: episode.ID,
			MemoryID:  memoryID,
			Position:  int(count),
			JoinedAt:  at,
		}
		if cerr := tx.Create(&member).Error; cerr != nil {
			return fmt.Errorf("failed to append episode member: %w", cerr)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return episode, nil
}

// SetSummary records the reasoner's summary of a closed episode. Summaries
// for open episodes are refused: the episode may still grow.
func (s *Segmenter) SetSummary(ctx context.Context, episodeID, summary string) error {
	result := s.db.WithContext(ctx).Model(&Episode{}).
		Where("id = ? AND open = ?", episodeID, false).
		Update("summary", summary)
	if result.Error != nil {
		return fmt.Errorf("failed to set episode summary: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var ep Episode
		err := s.db.WithContext(ctx).First(&ep, "id = ?", episodeID).Error
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("episode %s not found", episodeID)
		}
		if err != nil {
			return fmt.Errorf("failed to load episode %s: %w", episodeID, err)
		}
		return fmt.Errorf("episode %s is still open", episodeID)
	}
	return nil
}

// EpisodesOf returns the IDs of episodes containing the given memory
func (s *Segmenter) EpisodesOf(ctx context.Context, memoryID string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&EpisodeMember{}).
		Where("memory_id = ?", memoryID).
		Pluck("episode_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to look up episodes: %w", err)
	}
	return ids, nil
}

// Members returns the ordered member memory IDs of an episode
func (s *Segmenter) Members(ctx context.Context, episodeID string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&EpisodeMember{}).
		Where("episode_id = ?", episodeID).
		Order("position ASC").
		Pluck("memory_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load episode members: %w", err)
	}
	return ids, nil
}

// Companions returns memories that share at least one episode with the given
// memory, excluding the memory itself
func (s *Segmenter) Companions(ctx context.Context, memoryID string) ([]string, error) {
	episodes, err := s.EpisodesOf(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if len(episodes) == 0 {
		return nil, nil
	}

	var ids []string
	if err := s.db.WithContext(ctx).Model(&EpisodeMember{}).
		Distinct("memory_id").
		Where("episode_id IN ? AND memory_id <> ?", episodes, memoryID).
		Pluck("memory_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load episode companions: %w", err)
	}
	return ids, nil
}
