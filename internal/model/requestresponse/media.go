package requestresponse

// ErrorResponse : the body of a failed request
type ErrorResponse struct {
	Status string `json:"status" example:"error"`
	Msg    string `json:"msg" example:"media uuid not found"`
}

// StatusResponse : the body of a successful request without payload
type StatusResponse struct {
	Status string `json:"status" example:"OK"`
}

// PostStatus : one element of the post response array
type PostStatus struct {
	Status     string `json:"status" example:"commit_ready"`
	ZoneName   string `json:"zone_name,omitempty" example:"zone1"`
	CommitUUID string `json:"commit_uuid,omitempty" example:"5d0c5b1e-2f0c-4f5c-9a1f-0e4d1b2c3a4f"`
	Msg        string `json:"msg,omitempty"`
}

// CommitRequest : the staged entry to commit
type CommitRequest struct {
	ZoneName   string `json:"zone_name" example:"zone1"`
	CommitUUID string `json:"commit_uuid" example:"5d0c5b1e-2f0c-4f5c-9a1f-0e4d1b2c3a4f"`
}

// DeleteRequest : the media to delete
type DeleteRequest struct {
	UUID string `json:"uuid"`
}

// ForgeRequest : the identity a delegation token is forged for.
// UserID is a number or a UUID string.
type ForgeRequest struct {
	UserID     any            `json:"user_id"`
	UserName   string         `json:"user_name"`
	GroupName  string         `json:"group_name"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type ForgeResponse struct {
	Status string `json:"status" example:"OK"`
	Token  string `json:"token"`
}

// CheckResponse : the recomputed digest of a media
type CheckResponse struct {
	Status      string `json:"status" example:"OK"`
	MD5         string `json:"md5"`
	PreviousMD5 string `json:"previous_md5"`
	Size        int64  `json:"size"`
}

// ConnectorResponse : where the media content can be fetched
type ConnectorResponse struct {
	URL string `json:"url" example:"http://localhost:3004/storage/5d0c5b1e-2f0c-4f5c-9a1f-0e4d1b2c3a4f"`
}
