package dto

// CreateCommitmentRequest creates a habit. StartDate defaults to today in the user's timezone.
type CreateCommitmentRequest struct {
	ID          *string  `json:"id,omitempty" binding:"omitempty,uuid"`
	Title       string   `json:"title" binding:"required,min=1,max=200"`
	Description string   `json:"description" binding:"max=5000"`
	Schedule    []string `json:"schedule" binding:"required,min=1,max=7,dive,weekday"`
	StartDate   *string  `json:"start_date,omitempty" binding:"omitempty,date"`
	EndDate     *string  `json:"end_date,omitempty" binding:"omitempty,date"`
	Color       *string  `json:"color,omitempty" binding:"omitempty,hexcolor,len=7"`
	Archived    bool     `json:"archived"`
}

// UpdateCommitmentRequest is a partial update. end_date: null removes the end date.
type UpdateCommitmentRequest struct {
	Title       *string        `json:"title,omitempty" binding:"omitempty,min=1,max=200"`
	Description *string        `json:"description,omitempty" binding:"omitempty,max=5000"`
	Schedule    []string       `json:"schedule,omitempty" binding:"omitempty,max=7,dive,weekday"`
	StartDate   *string        `json:"start_date,omitempty" binding:"omitempty,date"`
	EndDate     OptionalString `json:"end_date"`
	Color       *string        `json:"color,omitempty" binding:"omitempty,hexcolor,len=7"`
	Archived    *bool          `json:"archived,omitempty"`
}

// CheckInRequest logs a commitment as kept on Date
type CheckInRequest struct {
	ID   *string `json:"id,omitempty" binding:"omitempty,uuid"`
	Date string  `json:"date" binding:"required,date"`
	Note string  `json:"note" binding:"max=1000"`
}

// CommitmentLogPayload is the offline-sync form of a check-in
type CommitmentLogPayload struct {
	CommitmentID string `json:"commitment_id" binding:"required,uuid"`
	Date         string `json:"date" binding:"required,date"`
	Note         string `json:"note" binding:"max=1000"`
}
