package search

// UE5Synonyms maps a lowercase query term to UE5-domain terms that commonly
// co-occur with it in engine and gameplay source. Declared as data, not
// code, so the dictionary can grow without touching the expansion logic.
// Ported from the UE5 source-query tool's synonym table, translated from a
// Python dict literal to Go.
var UE5Synonyms = map[string][]string{
	// Core gameplay framework
	"actor":          {"AActor", "spawn", "world", "GetWorld"},
	"pawn":           {"APawn", "controller", "possess"},
	"character":      {"ACharacter", "movement", "CharacterMovementComponent"},
	"controller":     {"AController", "PlayerController", "AIController", "possess"},
	"component":      {"UActorComponent", "USceneComponent", "AddComponent"},
	"actorcomponent": {"UActorComponent", "TickComponent"},
	"gamemode":       {"AGameModeBase", "AGameMode", "match state"},
	"gamestate":      {"AGameStateBase", "AGameState"},
	"playerstate":    {"APlayerState"},
	"hud":            {"AHUD", "widget", "UMG"},
	"world":          {"UWorld", "GetWorld", "level"},
	"level":          {"ULevel", "streaming", "persistent level"},

	// Reflection / UHT macros
	"property":  {"UPROPERTY", "reflection", "BlueprintReadWrite", "EditAnywhere"},
	"uproperty": {"property", "BlueprintReadWrite", "EditAnywhere"},
	"function":  {"UFUNCTION", "BlueprintCallable", "RPC"},
	"ufunction": {"function", "BlueprintCallable", "RPC"},
	"class":     {"UCLASS", "blueprintable", "UObject"},
	"uclass":    {"class", "blueprintable"},
	"struct":    {"USTRUCT", "BlueprintType"},
	"ustruct":   {"struct", "BlueprintType"},
	"enum":      {"UENUM", "BlueprintType"},
	"uenum":     {"enum", "BlueprintType"},
	"delegate":  {"DECLARE_DYNAMIC_MULTICAST_DELEGATE", "event", "broadcast"},
	"interface": {"UINTERFACE", "IInterface"},
	"blueprint": {"BlueprintCallable", "BlueprintReadWrite", "BlueprintImplementableEvent"},

	// Networking / replication
	"replicate":  {"Replicated", "GetLifetimeReplicatedProps", "RepNotify"},
	"replicated": {"Replicated", "GetLifetimeReplicatedProps"},
	"rpc":        {"Server", "Client", "NetMulticast", "UFUNCTION"},
	"server":     {"Server RPC", "authority", "HasAuthority"},
	"client":     {"Client RPC", "autonomous proxy"},
	"multicast":  {"NetMulticast", "broadcast"},
	"network":    {"replication", "NetDriver", "connection"},

	// Movement / physics
	"movement":  {"CharacterMovementComponent", "velocity", "MovementMode"},
	"physics":   {"simulate physics", "rigid body", "collision"},
	"collision": {"UPrimitiveComponent", "OnComponentHit", "overlap"},
	"overlap":   {"OnComponentBeginOverlap", "OnComponentEndOverlap"},
	"velocity":  {"GetVelocity", "LinearVelocity"},

	// Rendering / materials
	"material":  {"UMaterialInterface", "UMaterialInstance", "render"},
	"mesh":      {"UStaticMesh", "USkeletalMesh", "UStaticMeshComponent"},
	"skeletal":  {"USkeletalMeshComponent", "animation", "bone"},
	"animation": {"UAnimInstance", "UAnimMontage", "skeletal"},
	"texture":   {"UTexture2D", "render target"},
	"render":    {"FSceneView", "FPrimitiveSceneProxy"},

	// Assets / subsystems
	"asset":     {"UObject", "FAssetData", "asset registry"},
	"subsystem": {"UGameInstanceSubsystem", "UWorldSubsystem", "initialize"},
	"widget":    {"UUserWidget", "UMG", "slate"},
	"save":      {"USaveGame", "serialize"},
	"config":    {"UPROPERTY(config)", "ini", "DefaultGame.ini"},

	// Common verbs
	"spawn":   {"SpawnActor", "NewObject"},
	"create":  {"NewObject", "CreateDefaultSubobject"},
	"destroy": {"Destroy", "BeginDestroy", "ConditionalBeginDestroy"},
	"init":    {"Initialize", "BeginPlay", "PostInitializeComponents"},
	"begin":   {"BeginPlay", "BeginDestroy"},
	"tick":    {"Tick", "TickComponent", "TickActor"},
	"update":  {"Tick", "refresh"},
	"find":    {"definition", "declaration", "lookup"},
	"where":   {"definition", "declaration"},
	"define":  {"definition", "declaration", "UCLASS", "USTRUCT"},
}
