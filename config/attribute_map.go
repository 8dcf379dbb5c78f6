package config

// AttributeMap is a free-form attribute block, decoded into a typed config by the component
// that owns it.
type AttributeMap map[string]interface{}
