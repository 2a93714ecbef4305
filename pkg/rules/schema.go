package rules

// RulesSchema is the JSON schema a rules file must satisfy
const RulesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "definitions": {
    "patterns": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "words": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "block": {
      "type": ["object", "null"],
      "additionalProperties": false,
      "properties": {
        "root_prefixes": {"$ref": "#/definitions/words"},
        "max_depth": {"type": "integer", "minimum": 1, "maximum": 64},
        "exclude_name_patterns": {"$ref": "#/definitions/patterns"},
        "important_class_patterns": {"$ref": "#/definitions/patterns"},
        "boost_owner_patterns": {"$ref": "#/definitions/patterns"},
        "penalize_owner_patterns": {"$ref": "#/definitions/patterns"},
        "boost_method_patterns": {"$ref": "#/definitions/patterns"},
        "penalize_method_patterns": {"$ref": "#/definitions/patterns"},
        "anchored_verbs": {"$ref": "#/definitions/words"},
        "destructive_verbs": {"$ref": "#/definitions/words"},
        "anchors": {"$ref": "#/definitions/words"},
        "sentinel_defaults": {"$ref": "#/definitions/words"},
        "container_protocol_methods": {"$ref": "#/definitions/words"},
        "drop_container_methods": {"type": "boolean"},
        "prefer_public_over_private": {"type": "boolean"},
        "constructor_marker": {"type": "string"},
        "score_floor": {"type": "number"},
        "important_method_threshold": {"type": "integer", "minimum": 0},
        "priority_limits": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "p1_all": {"type": "boolean"},
            "p2_limit": {"type": "integer", "minimum": 1},
            "p3_limit": {"type": "integer", "minimum": 1},
            "p4_limit": {"type": "integer", "minimum": 1},
            "p5_limit": {"type": "integer", "minimum": 1}
          }
        },
        "construction": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "strategies": {
              "type": "array",
              "items": {"enum": ["no_args", "env_credentials", "config_file", "anonymous"]}
            },
            "credential_env": {"$ref": "#/definitions/words"},
            "config_files": {"$ref": "#/definitions/words"}
          }
        }
      }
    }
  },
  "properties": {
    "defaults": {"$ref": "#/definitions/block"},
    "systems": {
      "type": "object",
      "additionalProperties": {"$ref": "#/definitions/block"}
    },
    "sdks": {
      "type": "object",
      "additionalProperties": {"$ref": "#/definitions/block"}
    }
  },
  "additionalProperties": false
}`
