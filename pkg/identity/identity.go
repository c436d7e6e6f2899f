package identity

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/benmeehan/workpool/pkg/file"
	"github.com/google/uuid"
)

// Identity holds the instance's unique identifier and an optional display name.
type Identity struct {
	ID   string `json:"instance_id,omitempty"`
	Name string `json:"name,omitempty"`
}

// InstanceInfoInterface defines methods for managing the instance identity.
type InstanceInfoInterface interface {
	LoadOrCreate() error
	GetInstanceID() string
	GetIdentity() *Identity
}

// InstanceInfo persists the instance identity as a JSON file.
type InstanceInfo struct {
	InstanceFile string
	Identity     Identity
	fileOps      file.FileOperations
}

// NewInstanceInfo initializes a new InstanceInfo backed by filePath.
func NewInstanceInfo(filePath string, fileOps file.FileOperations) *InstanceInfo {
	return &InstanceInfo{
		InstanceFile: filePath,
		fileOps:      fileOps,
	}
}

// LoadOrCreate reads the identity file. When the file is missing or carries no
// id, a new UUID is generated and written back.
func (i *InstanceInfo) LoadOrCreate() error {
	err := i.fileOps.ReadJsonFile(i.InstanceFile, &i.Identity)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read instance identity: %w", err)
	}

	if i.Identity.ID != "" {
		return nil
	}

	i.Identity.ID = uuid.NewString()
	if err := i.fileOps.WriteJsonFile(i.InstanceFile, i.Identity); err != nil {
		return fmt.Errorf("failed to save instance identity: %w", err)
	}
	return nil
}

// GetInstanceID returns the current instance id.
func (i *InstanceInfo) GetInstanceID() string {
	return i.Identity.ID
}

// GetIdentity returns the current identity.
func (i *InstanceInfo) GetIdentity() *Identity {
	return &i.Identity
}
