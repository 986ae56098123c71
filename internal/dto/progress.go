package dto

// CreateProgressItemRequest creates a progress item. Offline clients may mint the ID.
// Quadrant, when given, overrides Important and Urgent.
type CreateProgressItemRequest struct {
	ID          *string `json:"id,omitempty" binding:"omitempty,uuid"`
	Title       string  `json:"title" binding:"required,min=1,max=200"`
	Description string  `json:"description" binding:"max=5000"`
	Important   bool    `json:"important"`
	Urgent      bool    `json:"urgent"`
	Quadrant    *string `json:"quadrant,omitempty" binding:"omitempty,oneof=do schedule delegate eliminate"`
	Status      *string `json:"status,omitempty" binding:"omitempty,oneof=todo in_progress done"`
	Progress    *int    `json:"progress,omitempty" binding:"omitempty,min=0,max=100"`
	DueDate     *string `json:"due_date,omitempty" binding:"omitempty,date"`
	Position    *int    `json:"position,omitempty" binding:"omitempty,min=0"`
}

// UpdateProgressItemRequest is a partial update; absent fields are left alone.
// due_date: null clears the due date.
type UpdateProgressItemRequest struct {
	Title       *string        `json:"title,omitempty" binding:"omitempty,min=1,max=200"`
	Description *string        `json:"description,omitempty" binding:"omitempty,max=5000"`
	Important   *bool          `json:"important,omitempty"`
	Urgent      *bool          `json:"urgent,omitempty"`
	Quadrant    *string        `json:"quadrant,omitempty" binding:"omitempty,oneof=do schedule delegate eliminate"`
	Status      *string        `json:"status,omitempty" binding:"omitempty,oneof=todo in_progress done"`
	Progress    *int           `json:"progress,omitempty" binding:"omitempty,min=0,max=100"`
	DueDate     OptionalString `json:"due_date"`
	Position    *int           `json:"position,omitempty" binding:"omitempty,min=0"`
}

// ReorderRequest lists item ids in their new order
type ReorderRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=1000,dive,uuid"`
}
