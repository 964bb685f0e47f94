package repository

import (
	"context"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
)

type RoomRepository interface {
	// Создает комнату; ErrAlreadyExists при коллизии кода
	Create(ctx context.Context, room *domain.Room) error
	// domain.ErrRoomNotFound если нет
	Get(ctx context.Context, id string) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	// Помечает комнату неактивной; повторный вызов безопасен
	Deactivate(ctx context.Context, id string) error
}
