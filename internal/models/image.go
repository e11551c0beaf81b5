package models

// ImageFields is the image representation shared by posts and user profiles.
// Exactly one mode is populated at a time: an external ImageURL, or an owned
// blob (ImageKey plus name/type/size) whose ImageURL is derived from the
// owning resource's id.
type ImageFields struct {
	ImageURL  string `gorm:"column:image_url;size:2048" json:"image_url,omitempty"`
	ImageName string `gorm:"column:image_name;size:255" json:"image_name,omitempty"`
	ImageType string `gorm:"column:image_type;size:100" json:"image_type,omitempty"`
	ImageSize int64  `gorm:"column:image_size" json:"image_size,omitempty"`
	ImageKey  string `gorm:"column:image_key;size:255" json:"-"`
}

// HasUpload reports whether the image is held as an owned blob.
func (f ImageFields) HasUpload() bool {
	return f.ImageKey != ""
}

// UseExternalURL switches to URL mode and clears every blob field.
func (f *ImageFields) UseExternalURL(url string) {
	*f = ImageFields{ImageURL: url}
}

// UseUpload switches to upload mode and replaces the external URL with the
// derived byte-serving reference.
func (f *ImageFields) UseUpload(key, name, contentType string, size int64, derivedURL string) {
	*f = ImageFields{
		ImageURL:  derivedURL,
		ImageName: name,
		ImageType: contentType,
		ImageSize: size,
		ImageKey:  key,
	}
}

// ImageUpload is an uploaded image as received from a client. The bytes are
// opaque; ContentType is whatever the client declared.
type ImageUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (u *ImageUpload) Size() int64 {
	if u == nil {
		return 0
	}
	return int64(len(u.Data))
}

// ImageContent is a stored image ready to be served.
type ImageContent struct {
	Data        []byte
	ContentType string
	Name        string
}
