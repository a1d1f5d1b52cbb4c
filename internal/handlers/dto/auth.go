package dto

type RegisterRequest struct {
	Name        string `json:"name" binding:"required,min=3,max=50"`
	Description string `json:"description,omitempty"`
	Password    string `json:"password" binding:"required,min=8,max=64"`
}

type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}
