package repositories

import jsoniter "github.com/json-iterator/go"

// Values are stored as JSON so the inspector and external tools can read them without a schema.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary
