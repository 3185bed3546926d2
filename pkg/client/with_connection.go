package client

func WithConnection(apiConnectionDetails *ApiConnectionDetails, action func(*Client) error) error {
	c := CreateApiConnection(apiConnectionDetails)
	defer c.Close()
	return action(c)
}
