package party

import "time"

type Status string

const (
	StatusRecruiting Status = "RECRUITING"
	StatusSelling    Status = "SELLING"
	StatusClosed     Status = "CLOSED"
	StatusCancelled  Status = "CANCELLED"
)

// Party is the meetup being paid for. Only the pricing and acceptance fields
// matter to the payment core; the social surface lives elsewhere.
type Party struct {
	ID                  int64     `gorm:"primaryKey"`
	HostID              int64     `gorm:"column:host_id;not null"`
	Title               string    `gorm:"column:title;size:200"`
	Stadium             string    `gorm:"column:stadium;size:100"`
	Status              Status    `gorm:"column:status;not null;size:20"`
	TicketPrice         *int64    `gorm:"column:ticket_price"`
	Price               *int64    `gorm:"column:price"`
	CurrentParticipants int       `gorm:"column:current_participants;not null;default:0"`
	MaxParticipants     int       `gorm:"column:max_participants;not null"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (Party) TableName() string {
	return "parties"
}

func (p *Party) IsFull() bool {
	return p.CurrentParticipants >= p.MaxParticipants
}
