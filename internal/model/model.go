// Package model defines the domain types shared across the WasteWatch
// dashboard client: users and roles, food-waste records with their
// approval lifecycle, notifications, and the request/response payloads
// exchanged with the REST collaborator.
package model

import "time"

// Role defines the type of user account. The server issues it as a token
// claim and every role check in the client derives from that claim.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleContributor Role = "CONTRIBUTOR"
)

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleContributor
}

// RecordStatus is the approval lifecycle state of a food-waste record.
type RecordStatus string

const (
	StatusPending  RecordStatus = "PENDING"
	StatusApproved RecordStatus = "APPROVED"
	StatusRejected RecordStatus = "REJECTED"
)

// UserStatus is the account-approval state of a registered user.
type UserStatus string

const (
	UserPending  UserStatus = "PENDING"
	UserApproved UserStatus = "APPROVED"
	UserDeclined UserStatus = "DECLINED"
)

// User represents both administrator and contributor accounts.
type User struct {
	ID         string     `json:"_id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	FirstName  string     `json:"firstName"`
	MiddleName string     `json:"middleName,omitempty"`
	LastName   string     `json:"lastName"`
	Role       Role       `json:"role"`
	Status     UserStatus `json:"status"`
}

// FoodWasteRecord is one contributor submission awaiting (or past) review.
// Multi-valued fields (categories, dishes, reasons) mirror the data-entry
// form, which lets the contributor tick several boxes plus an "other" text
// field per group.
type FoodWasteRecord struct {
	ID                      string       `json:"_id"`
	DateOfWaste             string       `json:"dateOfWaste"`
	FoodCategory            []string     `json:"foodCategory"`
	OtherFoodCategory       string       `json:"otherFoodCategory,omitempty"`
	DishesWasted            []string     `json:"dishesWasted"`
	OtherDish               string       `json:"otherDish,omitempty"`
	Quantity                float64      `json:"quantity"` // kilograms, >= 0.1
	Cost                    float64      `json:"cost"`     // currency, >= 1
	ReasonForWaste          []string     `json:"reasonForWaste"`
	OtherReason             string       `json:"otherReason,omitempty"`
	NotableIngredients      []string     `json:"notableIngredients,omitempty"`
	OtherIngredient         string       `json:"otherIngredient,omitempty"`
	Temperature             string       `json:"temperature"` // hot | normal | cold | didn't notice
	MealType                string       `json:"mealType"`
	WasteStage              string       `json:"wasteStage"`
	Preventable             string       `json:"preventable"`
	DisposalMethod          string       `json:"disposalMethod"`
	OtherDisposalMethod     string       `json:"otherDisposalMethod,omitempty"`
	EnvironmentalConditions string       `json:"environmentalConditions,omitempty"`
	RelevantEvents          string       `json:"relevantEvents,omitempty"`
	OtherRelevantEvents     string       `json:"otherRelevantEvents,omitempty"`
	AdditionalComments      string       `json:"additionalComments,omitempty"`
	Status                  RecordStatus `json:"status"`
	User                    User         `json:"userId"` // owning contributor, expanded by the server
	CreatedAt               string       `json:"createdAt,omitempty"`
	UpdatedAt               string       `json:"updatedAt,omitempty"`
}

// Notification is one entry in a user's notification feed.
type Notification struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	IsRead        bool      `json:"isRead"`
	CreatedAt     time.Time `json:"createdAt"`
	RouteRedirect string    `json:"routeRedirect"`
}

// Statistics is the aggregate view the report pages chart. The client
// treats it as prepared data; all aggregation happens server-side.
type Statistics struct {
	TotalQuantity  float64            `json:"totalQuantity"`
	TotalCost      float64            `json:"totalCost"`
	RecordCount    int                `json:"recordCount"`
	ByCategory     map[string]float64 `json:"byCategory"`
	ByReason       map[string]float64 `json:"byReason"`
	ByMonth        map[string]float64 `json:"byMonth"`
	ByDisposal     map[string]float64 `json:"byDisposal"`
	PreventableKg  float64            `json:"preventableKg"`
	ByContributor  map[string]float64 `json:"byContributor,omitempty"`
}

// Settings are the per-user preferences stored server-side.
type Settings struct {
	UserID             string `json:"userId"`
	EmailNotifications bool   `json:"emailNotifications"`
	PushNotifications  bool   `json:"pushNotifications"`
	Language           string `json:"language"`
	Currency           string `json:"currency"`
}

// LoginRequest is the payload for POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token and the user profile.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterRequest is the payload for POST /register.
type RegisterRequest struct {
	Email      string `json:"email"`
	Username   string `json:"username"`
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName,omitempty"`
	LastName   string `json:"lastName"`
	Role       Role   `json:"role"`
	Password   string `json:"password"`
}

// UpdateUserStatusRequest is the payload for PUT /user/status.
type UpdateUserStatusRequest struct {
	ID     string     `json:"_id"`
	Status UserStatus `json:"status"`
}

// UpdateRecordStatusRequest is the payload for PUT /record/{id}/status.
type UpdateRecordStatusRequest struct {
	Status RecordStatus `json:"status"`
}
